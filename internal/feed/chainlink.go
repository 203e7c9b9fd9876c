package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const aggregatorABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint80","name":"_roundId","type":"uint80"}],"name":"getRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain aggregator source.
type ChainlinkOptions struct {
	RPCURL            string
	AggregatorAddress string
	Timeout           time.Duration
}

// Chainlink reads prices from a Chainlink-compatible aggregator contract
// over Ethereum RPC.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChainlink builds a new aggregator source.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{opts: opts, logger: logger.With().Str("component", "chainlink_feed").Logger()}
}

// Decimals queries the aggregator's price precision.
func (c *Chainlink) Decimals(ctx context.Context) (uint8, error) {
	outputs, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	decimals, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}
	return decimals, nil
}

// Latest returns the aggregator's most recent round.
func (c *Chainlink) Latest(ctx context.Context) (Reading, error) {
	outputs, err := c.call(ctx, "latestRoundData")
	if err != nil {
		return Reading{}, err
	}
	return decodeRound(outputs)
}

// AtRound returns the reading published at a specific historical round.
func (c *Chainlink) AtRound(ctx context.Context, round uint64) (Reading, error) {
	outputs, err := c.call(ctx, "getRoundData", new(big.Int).SetUint64(round))
	if err != nil {
		return Reading{}, err
	}
	return decodeRound(outputs)
}

func (c *Chainlink) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}
	if c.opts.AggregatorAddress == "" {
		return nil, errors.New("aggregator contract address not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	addr := common.HexToAddress(c.opts.AggregatorAddress)
	payload, err := aggregatorABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	return aggregatorABI.Unpack(method, res)
}

func decodeRound(outputs []interface{}) (Reading, error) {
	if len(outputs) != 5 {
		return Reading{}, errors.New("unexpected round data response")
	}

	roundID, ok := outputs[0].(*big.Int)
	if !ok {
		return Reading{}, errors.New("failed to decode round id")
	}
	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return Reading{}, errors.New("failed to decode answer")
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return Reading{}, errors.New("failed to decode updated-at")
	}

	return Reading{
		Price:     sdkmath.NewIntFromBigInt(answer),
		UpdatedAt: updatedAt.Uint64(),
		Round:     roundID.Uint64(),
	}, nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ Source = (*Chainlink)(nil)
