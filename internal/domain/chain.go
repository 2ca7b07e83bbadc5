package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ChainID: идентификатор эндпоинта сети в транспорте (EID).
type ChainID uint32

func (c ChainID) String() string {
	if chain, ok := ChainByID(c); ok {
		return chain.Name
	}
	return fmt.Sprintf("eid:%d", uint32(c))
}

type Chain struct {
	Name     string
	ID       ChainID
	NativeID uint64
}

// Небольшая статическая таблица: имя сети -> EID транспорта -> нативный chainId.
var chainTable = []Chain{
	{Name: "ethereum", ID: 30101, NativeID: 1},
	{Name: "bsc", ID: 30102, NativeID: 56},
	{Name: "avalanche", ID: 30106, NativeID: 43114},
	{Name: "polygon", ID: 30109, NativeID: 137},
	{Name: "arbitrum", ID: 30110, NativeID: 42161},
	{Name: "optimism", ID: 30111, NativeID: 10},
	{Name: "base", ID: 30184, NativeID: 8453},
	{Name: "sepolia", ID: 40161, NativeID: 11155111},
	{Name: "arbitrum-sepolia", ID: 40231, NativeID: 421614},
	{Name: "base-sepolia", ID: 40245, NativeID: 84532},
}

func LookupChain(name string) (Chain, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range chainTable {
		if c.Name == name {
			return c, true
		}
	}
	return Chain{}, false
}

func ChainByID(id ChainID) (Chain, bool) {
	for _, c := range chainTable {
		if c.ID == id {
			return c, true
		}
	}
	return Chain{}, false
}

func ChainByNativeID(nativeID uint64) (Chain, bool) {
	for _, c := range chainTable {
		if c.NativeID == nativeID {
			return c, true
		}
	}
	return Chain{}, false
}

// ParseChain принимает имя сети или числовой EID.
func ParseChain(s string) (ChainID, error) {
	if c, ok := LookupChain(s); ok {
		return c.ID, nil
	}
	eid, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || eid == 0 {
		return 0, fmt.Errorf("unknown chain %q", s)
	}
	return ChainID(eid), nil
}
