// Package exchange is the signed REST client for the core's outbound
// order/position/fee surface (spec §6). Grounded on the reference bot's
// pkg/sdk/http.Client (resty base client, retry/backoff shape) and
// internal/exchange/{wire,signing} for payload shapes and EIP-712/HMAC
// authentication.
package exchange

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/exchange/signing"
	"github.com/betbot/aquoter/internal/exchange/wire"
	"github.com/betbot/aquoter/internal/ordermanager"
	"github.com/betbot/aquoter/pkg/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client implements ordermanager.ExchangeClient and userchannel.RestSnapshotter
// against the abstracted CLOB REST surface.
type Client struct {
	http       *resty.Client
	creds      wire.ApiKeyCreds
	privateKey *ecdsa.PrivateKey
	chainID    wire.Chain
	limits     *ratelimit.RateLimitManager
}

func New(host string, creds wire.ApiKeyCreds, privateKey *ecdsa.PrivateKey, chainID wire.Chain, timeout time.Duration) *Client {
	host = strings.TrimSuffix(host, "/")
	c := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == 429 {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 5 * time.Second, nil
			}
			return 0, nil
		})
	return &Client{http: c, creds: creds, privateKey: privateKey, chainID: chainID, limits: ratelimit.NewRateLimitManager()}
}

func (c *Client) l2Headers(method, path string, body *string) (*wire.L2PolyHeader, error) {
	return signing.CreateL2Headers(c.privateKey, &c.creds, &wire.L2HeaderArgs{
		Method: method, RequestPath: path, Body: body,
	}, nil)
}

func (c *Client) signedRequest(ctx context.Context, method, path string, body *string) (*resty.Request, error) {
	hdr, err := c.l2Headers(method, path, body)
	if err != nil {
		return nil, errors.Wrap(err, "exchange: build L2 headers")
	}
	r := c.http.R().SetContext(ctx).
		SetHeader("POLY_ADDRESS", hdr.PolyAddress).
		SetHeader("POLY_SIGNATURE", hdr.PolySignature).
		SetHeader("POLY_TIMESTAMP", hdr.PolyTimestamp).
		SetHeader("POLY_API_KEY", hdr.PolyAPIKey).
		SetHeader("POLY_PASSPHRASE", hdr.PolyPassphrase)
	return r, nil
}

// FeeRateBps implements ordermanager.ExchangeClient.
func (c *Client) FeeRateBps(ctx context.Context, assetID string) (int, error) {
	if err := c.limits.Wait(ctx, "fee-rate:get"); err != nil {
		return 0, err
	}
	path := "/fee-rate"
	req, err := c.signedRequest(ctx, "GET", path, nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		FeeRateBps int `json:"feeRateBps"`
	}
	resp, err := req.SetQueryParam("asset_id", assetID).SetResult(&out).Get(path)
	if err != nil {
		return 0, errors.Wrap(err, "exchange: fee-rate request")
	}
	if resp.IsError() {
		return 0, errors.Errorf("exchange: fee-rate non-2xx status=%d body=%s", resp.StatusCode(), resp.Body())
	}
	return out.FeeRateBps, nil
}

type positionRow struct {
	AssetID string `json:"asset_id"`
	Size    string `json:"size"`
}

// Positions fetches the authoritative position snapshot used by
// InventoryManager.ForceReconcile at startup and every T2 seconds.
func (c *Client) Positions(ctx context.Context) (map[string]domain.Size, error) {
	if err := c.limits.Wait(ctx, "positions:get"); err != nil {
		return nil, err
	}
	path := "/positions"
	req, err := c.signedRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	var rows []positionRow
	resp, err := req.SetResult(&rows).Get(path)
	if err != nil {
		return nil, errors.Wrap(err, "exchange: positions request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("exchange: positions non-2xx status=%d", resp.StatusCode())
	}
	out := make(map[string]domain.Size, len(rows))
	for _, r := range rows {
		sz, err := parseSize(r.Size)
		if err != nil {
			return nil, errors.Wrapf(err, "exchange: parse position size for %s", r.AssetID)
		}
		out[r.AssetID] = sz
	}
	return out, nil
}

// OpenOrders implements userchannel.RestSnapshotter.
func (c *Client) OpenOrders() ([]*domain.Order, error) {
	ctx := context.Background()
	if err := c.limits.Wait(ctx, "open-orders:get"); err != nil {
		return nil, err
	}
	path := "/open-orders"
	req, err := c.signedRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	var rows []wire.OpenOrder
	resp, err := req.SetResult(&rows).Get(path)
	if err != nil {
		return nil, errors.Wrap(err, "exchange: open-orders request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("exchange: open-orders non-2xx status=%d", resp.StatusCode())
	}
	out := make([]*domain.Order, 0, len(rows))
	for _, r := range rows {
		orig, err := parseSize(r.OriginalSize)
		if err != nil {
			return nil, err
		}
		matched, err := parseSize(r.SizeMatched)
		if err != nil {
			return nil, err
		}
		px, err := domain.PriceFromString(r.Price)
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.Order{
			OrderID:       r.ID,
			AssetID:       r.AssetID,
			Side:          domain.Side(r.Side),
			Price:         px,
			OriginalSize:  orig,
			RemainingSize: orig.Sub(matched),
			Status:        decodeStatus(r.Status),
			PostOnly:      r.OrderType == string(wire.OrderTypeGTC),
		})
	}
	return out, nil
}

func decodeStatus(s string) domain.OrderStatus {
	switch strings.ToUpper(s) {
	case "LIVE":
		return domain.OrderStatusLive
	case "MATCHED", "PARTIAL":
		return domain.OrderStatusPartial
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELLED", "CANCELED":
		return domain.OrderStatusCancelled
	case "EXPIRED":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusRejected
	}
}

// PlaceOrders implements ordermanager.ExchangeClient: signs and batches up
// to 15 orders per call per spec §6, using internal/exchange/signing's
// EIP-712 order signature.
func (c *Client) PlaceOrders(ctx context.Context, reqs []ordermanager.PlacementRequest) ([]ordermanager.PlacementResult, error) {
	var results []ordermanager.PlacementResult
	for _, batch := range ordermanager.Batches(reqs) {
		batchResults, err := c.placeBatch(ctx, batch)
		if err != nil {
			return results, err
		}
		results = append(results, batchResults...)
	}
	return results, nil
}

func (c *Client) placeBatch(ctx context.Context, reqs []ordermanager.PlacementRequest) ([]ordermanager.PlacementResult, error) {
	if err := c.limits.Wait(ctx, "orders:post"); err != nil {
		return nil, err
	}
	orders := make([]wire.PostOrdersArgs, 0, len(reqs))
	address := signing.GetAddressFromPrivateKey(c.privateKey).Hex()

	for _, r := range reqs {
		signed, err := c.buildSignedOrder(r, address)
		if err != nil {
			return nil, errors.Wrapf(err, "exchange: sign order for %s", r.AssetID)
		}
		orders = append(orders, wire.PostOrdersArgs{Order: signed, OrderType: wire.OrderTypeGTC, PostOnly: true})
	}

	path := "/orders/batch"
	req, err := c.signedRequest(ctx, "POST", path, nil)
	if err != nil {
		return nil, err
	}
	var raw []wire.OrderResponse
	resp, err := req.SetBody(orders).SetResult(&raw).Post(path)
	if err != nil {
		return nil, errors.Wrap(err, "exchange: batch placement request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("exchange: batch placement non-2xx status=%d body=%s", resp.StatusCode(), resp.Body())
	}

	out := make([]ordermanager.PlacementResult, 0, len(raw))
	for i, r := range raw {
		res := ordermanager.PlacementResult{OrderID: r.OrderID, Accepted: r.Success}
		if i < len(reqs) {
			res.ClientOrderID = reqs[i].ClientOrderID
		}
		if !r.Success {
			if strings.Contains(strings.ToLower(r.ErrorMsg), "cross") {
				res.Crossed = true
			} else {
				res.Rejected = true
				res.RejectReason = r.ErrorMsg
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func (c *Client) buildSignedOrder(r ordermanager.PlacementRequest, maker string) (wire.SignedOrder, error) {
	side := wire.SideBuy
	if r.Side == domain.SideSell {
		side = wire.SideSell
	}
	// makerAmount/takerAmount follow the CLOB convention: for a BUY order
	// maker offers collateral (price*size) and takes conditional tokens
	// (size); for a SELL it's the reverse.
	price := r.Price.Decimal()
	size := r.Size.Decimal()
	scale := int64(1_000_000) // USDC/conditional token 6-decimal base units

	makerAmount, takerAmount := "", ""
	if r.Side == domain.SideBuy {
		makerAmount = price.Mul(size).Shift(6).StringFixed(0)
		takerAmount = size.Mul(decimalFromInt(scale)).StringFixed(0)
	} else {
		makerAmount = size.Mul(decimalFromInt(scale)).StringFixed(0)
		takerAmount = price.Mul(size).Shift(6).StringFixed(0)
	}

	orderData := &signing.OrderData{
		Salt:          time.Now().UnixNano(),
		Maker:         maker,
		Signer:        maker,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       bigFromString(r.AssetID),
		MakerAmount:   bigFromString(makerAmount),
		TakerAmount:   bigFromString(takerAmount),
		Expiration:    bigFromInt(0),
		Nonce:         bigFromInt(0),
		FeeRateBps:    bigFromInt(int64(r.FeeRateBps)),
		Side:          side,
		SignatureType: wire.SignatureTypeBrowser,
	}
	sig, err := signing.BuildOrderSignature(c.privateKey, c.chainID, exchangeContractAddress(c.chainID), orderData)
	if err != nil {
		return wire.SignedOrder{}, err
	}

	return wire.SignedOrder{
		Salt: orderData.Salt, Maker: maker, Signer: maker, Taker: orderData.Taker,
		TokenID: r.AssetID, MakerAmount: makerAmount, TakerAmount: takerAmount,
		Expiration: "0", Nonce: "0", FeeRateBps: strconv.Itoa(r.FeeRateBps),
		Side: side, SignatureType: int(wire.SignatureTypeBrowser), Signature: sig,
	}, nil
}

// CancelOrder implements ordermanager.ExchangeClient.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.limits.Wait(ctx, "orders:delete"); err != nil {
		return err
	}
	path := fmt.Sprintf("/order/%s", orderID)
	req, err := c.signedRequest(ctx, "DELETE", path, nil)
	if err != nil {
		return err
	}
	resp, err := req.Delete(path)
	if err != nil {
		return errors.Wrap(err, "exchange: cancel order request")
	}
	if resp.IsError() {
		return errors.Errorf("exchange: cancel non-2xx status=%d", resp.StatusCode())
	}
	return nil
}

// CancelAllForAsset implements ordermanager.ExchangeClient.
func (c *Client) CancelAllForAsset(ctx context.Context, assetID string) error {
	if err := c.limits.Wait(ctx, "orders:delete"); err != nil {
		return err
	}
	path := "/orders"
	req, err := c.signedRequest(ctx, "DELETE", path, nil)
	if err != nil {
		return err
	}
	resp, err := req.SetQueryParam("asset_id", assetID).Delete(path)
	if err != nil {
		return errors.Wrap(err, "exchange: cancel-all request")
	}
	if resp.IsError() {
		return errors.Errorf("exchange: cancel-all non-2xx status=%d", resp.StatusCode())
	}
	return nil
}

func parseSize(s string) (domain.Size, error) {
	p, err := domain.PriceFromString(s)
	if err != nil {
		return domain.Size{}, err
	}
	return domain.NewSize(p.Decimal()), nil
}
