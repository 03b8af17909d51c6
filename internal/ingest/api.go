package ingest

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"aptcast/internal/config"
)

// successCodes are the result codes MOLIT has used for a successful query.
// The service has answered with both over the years.
var successCodes = map[string]bool{"00": true, "000": true}

// Client queries the MOLIT apartment trade endpoint. Responses are cached by
// (key, region, month); an identical query never goes back to the network.
type Client struct {
	httpClient *http.Client
	endpoint   string
	pageSize   int
	userAgent  string
	logger     *slog.Logger

	mu    sync.RWMutex
	cache map[string][]RawDeal
}

// NewClient creates a MOLIT client from configuration. Certificate
// validation is disabled: the gateway has served certificates that fail
// chain validation on stock systems, and a browser user agent is required to
// get past its request filtering.
func NewClient(cfg config.MolitConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		endpoint:  cfg.Endpoint,
		pageSize:  cfg.PageSize,
		userAgent: cfg.UserAgent,
		logger:    logger.With(slog.String("component", "molit_client")),
	}
}

// FetchMonth retrieves every transaction for a 5-digit region code and a
// YYYYMM month. Returns ErrNoData when the query succeeds with zero items.
func (c *Client) FetchMonth(ctx context.Context, serviceKey, regionCode, yearMonth string) ([]RawDeal, error) {
	cacheKey := serviceKey + "|" + regionCode + "|" + yearMonth

	c.mu.RLock()
	cached, ok := c.cache[cacheKey]
	c.mu.RUnlock()
	if ok {
		c.logger.DebugContext(ctx, "serving cached response",
			slog.String("region", regionCode),
			slog.String("month", yearMonth))
		return cached, nil
	}

	body, err := c.get(ctx, serviceKey, regionCode, yearMonth)
	if err != nil {
		return nil, err
	}

	deals, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fetched transactions",
		slog.String("region", regionCode),
		slog.String("month", yearMonth),
		slog.Int("count", len(deals)))

	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[string][]RawDeal)
	}
	c.cache[cacheKey] = deals
	c.mu.Unlock()

	return deals, nil
}

// get issues the single GET request and returns the raw response body
func (c *Client) get(ctx context.Context, serviceKey, regionCode, yearMonth string) ([]byte, error) {
	params := url.Values{}
	params.Set("serviceKey", serviceKey)
	params.Set("LAWD_CD", regionCode)
	params.Set("DEAL_YMD", yearMonth)
	params.Set("pageNo", "1")
	params.Set("numOfRows", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, TransportError("failed to build request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, TransportError("request to transaction service failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransportError("failed to read response body", err)
	}

	return body, nil
}

// rtmsEnvelope is the XML response wrapper. Items are kept as generic
// element lists because the item schema has shipped under two tag-naming
// conventions.
type rtmsEnvelope struct {
	Header struct {
		ResultCode string `xml:"resultCode"`
		ResultMsg  string `xml:"resultMsg"`
	} `xml:"header"`
	Body struct {
		Items struct {
			Item []rtmsItem `xml:"item"`
		} `xml:"items"`
		TotalCount string `xml:"totalCount"`
	} `xml:"body"`
}

type rtmsItem struct {
	Fields []rtmsField `xml:",any"`
}

type rtmsField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// parseEnvelope turns the raw XML body into raw deals, surfacing service
// errors and the explicit no-data outcome.
func parseEnvelope(body []byte) ([]RawDeal, error) {
	var envelope rtmsEnvelope
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, TransportError(fmt.Sprintf("response is not XML: %s", snippet(body)), err)
	}

	code := strings.TrimSpace(envelope.Header.ResultCode)
	if code == "" {
		// Parsed as XML but not as the expected envelope; the gateway wraps
		// some failures in a different document entirely.
		return nil, TransportError(fmt.Sprintf("unrecognized response envelope: %s", snippet(body)), nil)
	}
	if !successCodes[code] {
		return nil, RemoteError(code, strings.TrimSpace(envelope.Header.ResultMsg))
	}

	items := envelope.Body.Items.Item
	if len(items) == 0 {
		return nil, ErrNoData
	}

	deals := make([]RawDeal, 0, len(items))
	for _, item := range items {
		deals = append(deals, itemToDeal(item))
	}
	return deals, nil
}

// itemToDeal maps one result item onto a raw deal, accepting either tag
// scheme for each logical field and defaulting absent optional fields to "".
func itemToDeal(item rtmsItem) RawDeal {
	fields := make(map[string]string, len(item.Fields))
	for _, f := range item.Fields {
		fields[f.XMLName.Local] = strings.TrimSpace(f.Value)
	}

	pick := func(names ...string) string {
		for _, name := range names {
			if v, ok := fields[name]; ok && v != "" {
				return v
			}
		}
		return ""
	}

	year := pick("년", "dealYear")
	month := pick("월", "dealMonth")
	if len(month) == 1 {
		month = "0" + month
	}

	return RawDeal{
		RawAddress:  pick("시군구", "법정동", "umdNm"),
		ComplexName: pick("아파트", "aptNm"),
		AreaSqm:     pick("전용면적", "excluUseAr"),
		ContractYM:  year + month,
		ContractDay: pick("일", "dealDay"),
		PriceRaw:    pick("거래금액", "dealAmount"),
		Floor:       pick("층", "floor"),
	}
}

// snippet trims the body for inclusion in an error message
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
