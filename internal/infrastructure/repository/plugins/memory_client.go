package plugins

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/watanabetatsumi/nutricache/internal/infrastructure/repository"
)

// ErrInjectedFailure FailNextApplyで注入される失敗
var ErrInjectedFailure = errors.New("injected store failure")

// MemoryClient プロセス内に保存するFactRepoClientの実装
// 単一プロセスでの利用とテストを想定している
type MemoryClient struct {
	mu      sync.Mutex
	entries map[string][]byte
	markers map[string][]byte

	failApply int
	failScan  int
	applied   int
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		entries: make(map[string][]byte),
		markers: make(map[string][]byte),
	}
}

// FailNextApply 次のn回のApplyMutationsを失敗させる
func (mc *MemoryClient) FailNextApply(n int) {
	mc.mu.Lock()
	mc.failApply = n
	mc.mu.Unlock()
}

// FailNextScan 次のn回のScanEntriesを失敗させる
func (mc *MemoryClient) FailNextScan(n int) {
	mc.mu.Lock()
	mc.failScan = n
	mc.mu.Unlock()
}

// AppliedCount 成功したApplyMutationsの回数
func (mc *MemoryClient) AppliedCount() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.applied
}

// Len 保存されているエントリ数
func (mc *MemoryClient) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.entries)
}

func (mc *MemoryClient) ApplyMutations(ctx context.Context, mutations []repository.Mutation) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.failApply > 0 {
		mc.failApply--
		return ErrInjectedFailure
	}
	for _, m := range mutations {
		if m.Delete {
			delete(mc.entries, m.Record.Key)
			continue
		}
		mc.entries[m.Record.Key] = append([]byte(nil), m.Record.Data...)
	}
	mc.applied++
	return nil
}

func (mc *MemoryClient) ScanEntries(ctx context.Context) ([]repository.EntryRecord, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.failScan > 0 {
		mc.failScan--
		return nil, ErrInjectedFailure
	}

	records := make([]repository.EntryRecord, 0, len(mc.entries))
	for k, v := range mc.entries {
		records = append(records, repository.EntryRecord{Key: k, Data: append([]byte(nil), v...)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (mc *MemoryClient) GetMarker(ctx context.Context, name string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	data, ok := mc.markers[name]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (mc *MemoryClient) SetMarker(ctx context.Context, name string, data []byte) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.markers[name] = append([]byte(nil), data...)
	return nil
}
