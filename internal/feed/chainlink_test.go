package feed

import (
	"context"
	"math/big"
	"testing"
)

func TestChainlinkMissingConfig(t *testing.T) {
	c := NewChainlink(ChainlinkOptions{}, noopLogger())
	if _, err := c.Latest(context.Background()); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	c = NewChainlink(ChainlinkOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, err := c.Latest(context.Background()); err == nil {
		t.Fatal("缺少合约地址应报错")
	}
}

func TestDecodeRound(t *testing.T) {
	outputs := []interface{}{
		big.NewInt(42),
		big.NewInt(200000000000),
		big.NewInt(1699999990),
		big.NewInt(1700000000),
		big.NewInt(42),
	}

	reading, err := decodeRound(outputs)
	if err != nil {
		t.Fatalf("decodeRound: %v", err)
	}
	if reading.Round != 42 {
		t.Fatalf("round = %d, 期望 42", reading.Round)
	}
	if reading.Price.String() != "200000000000" {
		t.Fatalf("price = %s", reading.Price)
	}
	if reading.UpdatedAt != 1700000000 {
		t.Fatalf("updated_at = %d", reading.UpdatedAt)
	}
}

func TestDecodeRoundMalformed(t *testing.T) {
	if _, err := decodeRound([]interface{}{big.NewInt(1)}); err == nil {
		t.Fatal("长度不符的返回应报错")
	}
	if _, err := decodeRound([]interface{}{"x", "y", "z", "w", "v"}); err == nil {
		t.Fatal("类型不符的返回应报错")
	}
}
