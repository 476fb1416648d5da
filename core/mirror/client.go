// Package mirror reads token, account and relationship state from the ledger's
// mirror node REST API. Token state is always fetched fresh. The only cached
// data is the account/contract to EVM address mapping, which never changes once
// an entity exists.
package mirror

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
	"github.com/marwen-abid/stablecoin-sdk-go/core/net"
	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// Network selects a public mirror node.
type Network string

const (
	Mainnet    Network = "mainnet"
	Testnet    Network = "testnet"
	Previewnet Network = "previewnet"
	Local      Network = "local"
)

// MirrorURL returns the default mirror node base URL of the network.
func (n Network) MirrorURL() string {
	switch n {
	case Mainnet:
		return "https://mainnet-public.mirrornode.hedera.com"
	case Testnet:
		return "https://testnet.mirrornode.hedera.com"
	case Previewnet:
		return "https://previewnet.mirrornode.hedera.com"
	case Local:
		return "http://127.0.0.1:5551"
	}
	return ""
}

const defaultAliasCacheSize = 1024

// Client is a mirror node client. It implements stablecoin.TokenReader.
type Client struct {
	baseURL string
	http    *net.Client
	aliases *lru.Cache[string, string]
	logger  *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport used for mirror queries.
func WithHTTPClient(c *net.Client) Option {
	return func(m *Client) {
		m.http = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(m *Client) {
		m.logger = l
	}
}

// NewClient creates a mirror client for baseURL (for example Testnet.MirrorURL()).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "mirror base URL is required", nil)
	}
	aliases, err := lru.New[string, string](defaultAliasCacheSize)
	if err != nil {
		return nil, errors.NewConfigError(errors.INVALID_ARGUMENT, "failed to create alias cache", err)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		aliases: aliases,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = net.NewClient()
	}
	c.logger = logging.OrDiscard(c.logger).WithField("component", "mirror")
	return c, nil
}

// Token loads the current state of tokenID.
func (c *Client) Token(ctx context.Context, tokenID string) (*stablecoin.StableCoin, error) {
	doc, err := c.get(ctx, "/api/v1/tokens/"+url.PathEscape(tokenID))
	if err != nil {
		return nil, err
	}

	coin := &stablecoin.StableCoin{
		TokenID:          doc.Get("token_id").String(),
		Name:             doc.Get("name").String(),
		Symbol:           doc.Get("symbol").String(),
		Decimals:         int(doc.Get("decimals").Int()),
		TreasuryAccount:  doc.Get("treasury_account_id").String(),
		AutoRenewAccount: doc.Get("auto_renew_account").String(),
		Memo:             doc.Get("memo").String(),
		Paused:           doc.Get("pause_status").String() == "PAUSED",
		Deleted:          doc.Get("deleted").Bool(),
	}
	if coin.TotalSupply, err = parseAmount(doc.Get("total_supply")); err != nil {
		return nil, c.invalid("total_supply", tokenID, err)
	}
	if coin.MaxSupply, err = parseAmount(doc.Get("max_supply")); err != nil {
		return nil, c.invalid("max_supply", tokenID, err)
	}

	if proxy := proxyFromMemo(coin.Memo); proxy != "" {
		id, err := ParseEntityID(proxy)
		if err != nil {
			return nil, c.invalid("memo", tokenID, err)
		}
		coin.ProxyContractID = id.String()
		coin.ProxyAddress = id.EVMAddress()
	}

	keys := []struct {
		field  string
		target *stablecoin.KeyBinding
	}{
		{"admin_key", &coin.AdminKey},
		{"freeze_key", &coin.FreezeKey},
		{"kyc_key", &coin.KYCKey},
		{"wipe_key", &coin.WipeKey},
		{"pause_key", &coin.PauseKey},
		{"supply_key", &coin.SupplyKey},
		{"fee_schedule_key", &coin.FeeScheduleKey},
	}
	for _, k := range keys {
		binding, err := parseKey(doc.Get(k.field))
		if err != nil {
			return nil, c.invalid(k.field, tokenID, err)
		}
		*k.target = binding
	}

	c.logger.WithFields(logrus.Fields{"token": tokenID, "paused": coin.Paused}).Debug("loaded token")
	return coin, nil
}

// Account loads the key and EVM address of accountID.
func (c *Client) Account(ctx context.Context, accountID string) (*stablecoin.AccountInfo, error) {
	doc, err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(accountID))
	if err != nil {
		return nil, err
	}
	key, err := parseKey(doc.Get("key"))
	if err != nil {
		return nil, c.invalid("key", accountID, err)
	}
	info := &stablecoin.AccountInfo{
		ID:         doc.Get("account").String(),
		EVMAddress: doc.Get("evm_address").String(),
		Key:        key,
	}
	if info.EVMAddress == "" {
		if id, err := ParseEntityID(info.ID); err == nil {
			info.EVMAddress = id.EVMAddress()
		}
	}
	c.aliases.Add(accountID, info.EVMAddress)
	return info, nil
}

// TokenRelationship loads the association between accountID and tokenID.
// A missing association is reported with Associated=false, not an error.
func (c *Client) TokenRelationship(ctx context.Context, accountID, tokenID string) (*stablecoin.TokenRelationship, error) {
	path := fmt.Sprintf("/api/v1/accounts/%s/tokens?token.id=%s", url.PathEscape(accountID), url.QueryEscape(tokenID))
	doc, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	tokens := doc.Get("tokens").Array()
	if len(tokens) == 0 {
		return &stablecoin.TokenRelationship{Associated: false, Balance: new(big.Int)}, nil
	}
	rel := tokens[0]
	balance, err := parseAmount(rel.Get("balance"))
	if err != nil {
		return nil, c.invalid("balance", accountID, err)
	}
	return &stablecoin.TokenRelationship{
		Associated: true,
		Balance:    balance,
		Frozen:     rel.Get("freeze_status").String() == "FROZEN",
		KycGranted: rel.Get("kyc_status").String() != "REVOKED",
	}, nil
}

// EVMAddress resolves an account id to its EVM address. Addresses are returned
// unchanged.
func (c *Client) EVMAddress(ctx context.Context, accountID string) (string, error) {
	if IsEVMAddress(accountID) {
		return accountID, nil
	}
	if addr, ok := c.aliases.Get(accountID); ok {
		return addr, nil
	}
	info, err := c.Account(ctx, accountID)
	if err != nil {
		return "", err
	}
	return info.EVMAddress, nil
}

// ContractEVMAddress resolves a contract id to its EVM address.
func (c *Client) ContractEVMAddress(ctx context.Context, contractID string) (string, error) {
	if IsEVMAddress(contractID) {
		return contractID, nil
	}
	cacheKey := "contract:" + contractID
	if addr, ok := c.aliases.Get(cacheKey); ok {
		return addr, nil
	}
	doc, err := c.get(ctx, "/api/v1/contracts/"+url.PathEscape(contractID))
	if err != nil {
		return "", err
	}
	addr := doc.Get("evm_address").String()
	if addr == "" {
		id, err := ParseEntityID(contractID)
		if err != nil {
			return "", c.invalid("evm_address", contractID, err)
		}
		addr = id.EVMAddress()
	}
	c.aliases.Add(cacheKey, addr)
	return addr, nil
}

func (c *Client) get(ctx context.Context, path string) (gjson.Result, error) {
	resp, err := c.http.Get(ctx, c.baseURL+path)
	if err != nil {
		return gjson.Result{}, err
	}
	body, err := resp.Bytes()
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return gjson.Result{}, errors.NewTransportError(errors.MIRROR_NOT_FOUND, "mirror resource not found: "+path, nil).
			WithContext("path", path)
	}
	if !resp.IsSuccess() {
		return gjson.Result{}, errors.NewTransportError(
			errors.NETWORK_ERROR,
			fmt.Sprintf("mirror returned %d for %s", resp.StatusCode, path),
			nil,
		).WithContext("status", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.NewTransportError(errors.NETWORK_ERROR, "mirror returned invalid JSON for "+path, nil)
	}
	return gjson.ParseBytes(body), nil
}

func (c *Client) invalid(field, id string, err error) error {
	return errors.NewTransportError(errors.NETWORK_ERROR, fmt.Sprintf("mirror returned invalid %s for %s", field, id), err)
}

// proxyFromMemo extracts the proxy contract id from a stablecoin token memo.
func proxyFromMemo(memo string) string {
	if !gjson.Valid(memo) {
		return ""
	}
	doc := gjson.Parse(memo)
	for _, field := range []string{"proxyContract", "p"} {
		if v := doc.Get(field).String(); v != "" && v != "0.0.0" {
			return v
		}
	}
	return ""
}

func parseAmount(v gjson.Result) (*big.Int, error) {
	if !v.Exists() || v.Type == gjson.Null || v.String() == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(v.String(), 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", v.String())
	}
	return n, nil
}

var _ stablecoin.TokenReader = (*Client)(nil)
