package idgen

import (
	"fmt"
	"sync"
	"time"
)

// Snowflake layout, 64 bits:
//
//	0 | 41 bits ms since epoch | 10 bits worker | 12 bits sequence
//
// Business numbers (transaction, commission, withdrawal) embed the low
// eight digits of a snowflake id after a prefix and a second-resolution timestamp.
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

const (
	PrefixTransaction = "TXN"
	PrefixCommission  = "COM"
	PrefixWithdrawal  = "WDR"
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("worker id must be within 0-%d, got %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init configures the default generator. Only the first call has any effect.
func Init(workerID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(workerID)
	})
	return err
}

func NextID() int64 {
	if defaultGenerator == nil {
		_ = Init(1)
	}
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted for this millisecond
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// Generate returns prefix + yyyyMMddHHmmss + eight digits, e.g. TXN2024011514305212345678.
func Generate(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%08d", prefix, time.Now().Format("20060102150405"), id%100000000)
}

func GenerateTransactionNo() string { return Generate(PrefixTransaction) }

func GenerateCommissionNo() string { return Generate(PrefixCommission) }

func GenerateWithdrawalNo() string { return Generate(PrefixWithdrawal) }
