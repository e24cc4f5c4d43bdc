package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"AgentHub-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name string
	// RPCURL is dialed with go-ethereum's rpc package, so http(s), ws(s) and
	// IPC paths are all accepted.
	RPCURL string
	// ExpectedChainID, when set, must match what the node reports.
	ExpectedChainID string
	Notes           string
}

// Client is a web3.Backend backed by a go-ethereum ethclient.
type Client struct {
	*ethclient.Client

	name      string
	notes     string
	rpcClient *gethrpc.Client
	chainID   *big.Int
	closeOnce sync.Once
}

// NewClient dials the configured RPC endpoint and verifies the chain id.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	if expected := strings.TrimSpace(cfg.ExpectedChainID); expected != "" {
		if !web3.SameChain(expected, hexutil.EncodeBig(chainID)) {
			rpcClient.Close()
			return nil, fmt.Errorf("节点 %s 返回的链 ID %s 与配置 %s 不一致", cfg.Name, hexutil.EncodeBig(chainID), expected)
		}
	}

	return &Client{
		Client:    eth,
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		chainID:   chainID,
	}, nil
}

// Name returns the configured chain name.
func (c *Client) Name() string { return c.name }

// ChainID returns the chain id observed when the client was dialed.
func (c *Client) ChainID(context.Context) (*big.Int, error) {
	if c == nil || c.chainID == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	return new(big.Int).Set(c.chainID), nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		if c.Client != nil {
			c.Client.Close()
		}
	})
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.Client == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}
	blockNumber, err := c.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     hexutil.EncodeBig(c.chainID),
		BlockNumber: hexutil.EncodeUint64(blockNumber),
		Notes:       c.notes,
	}, nil
}

var _ web3.Backend = (*Client)(nil)
