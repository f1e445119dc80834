package snowflake

import (
	"fmt"
	"sync"
	"time"
)

type Snowflake struct {
	Timestamp int64 // unix milliseconds
	WorkerID  int64
	Increment int64
}

const (
	timestampLength int64 = 42                                    // 42
	timestampPos          = 64 - timestampLength                  // 22
	workerLength    int64 = 10                                    // 10
	workerPos             = timestampPos - workerLength           // 12
	incrementLength       = 64 - (timestampLength + workerLength) // 12

	maxWorkerValue    = 1<<workerLength - 1
	maxIncrementValue = 1<<incrementLength - 1

	// Epoch is 2024-01-01 UTC in unix milliseconds. Timestamps are stored
	// relative to it, which keeps IDs positive until 2093.
	Epoch int64 = 1_704_067_200_000
)

type Generator struct {
	workerID      int64
	lastIncrement int64
	lastTimestamp int64
	mutex         sync.Mutex
	now           func() time.Time
}

func New(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerValue {
		return nil, fmt.Errorf("worker ID value exceeds maximum value of [%d]", maxWorkerValue)
	}

	return &Generator{workerID: workerID, now: time.Now}, nil
}

func (g *Generator) Generate() (int64, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	timestamp := g.now().UnixMilli() - Epoch
	if timestamp < 0 {
		return 0, fmt.Errorf("clock is set before the snowflake epoch")
	}
	if timestamp == g.lastTimestamp {
		g.lastIncrement += 1
		if g.lastIncrement > maxIncrementValue {
			return 0, fmt.Errorf("increment overflow after increment reached %d", g.lastIncrement)
		}
	} else {
		g.lastIncrement = 0
		g.lastTimestamp = timestamp
	}

	return timestamp<<timestampPos | g.workerID<<workerPos | g.lastIncrement, nil
}

func Extract(snowflakeId int64) Snowflake {
	return Snowflake{
		Timestamp: snowflakeId>>timestampPos + Epoch,
		WorkerID:  (snowflakeId >> workerPos) & maxWorkerValue,
		Increment: snowflakeId & maxIncrementValue,
	}
}

// ExtractTimestamp returns the unix milliseconds the ID was generated at.
func ExtractTimestamp(snowflakeId int64) int64 {
	return snowflakeId>>timestampPos + Epoch
}
