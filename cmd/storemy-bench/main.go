package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"storemy/pkg/buffer"
	"storemy/pkg/concurrency/lock"
	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/config"
	"storemy/pkg/logging"
	"storemy/pkg/storage/btree"
	"storemy/pkg/storage/disk"
	"storemy/pkg/storage/heap"
	"storemy/pkg/storage/tuple"
)

func main() {
	dataFile := flag.String("data", "./bench.db", "backing file for the buffer pool")
	rows := flag.Int("rows", 10000, "number of rows to insert")
	poolSize := flag.Int("pool", 128, "buffer pool frame count")
	flag.Parse()

	logging.InitDefault()
	defer logging.Close()

	cfg := config.Default()
	cfg.BufferPoolSize = *poolSize

	dm, err := disk.New(*dataFile)
	if err != nil {
		log.Fatalf("failed to open data file: %v", err)
	}
	defer dm.Close()

	pool := buffer.NewPool(cfg.BufferPoolSize, dm)
	file := heap.NewFile(pool)
	tree := btree.New(pool, int32(cfg.BTreeInternalMaxSize), int32(cfg.BTreeLeafMaxSize))

	lockMgr := lock.New(cfg.DeadlockDetectorInterval, cfg.LockWaitPollInterval)
	registry := transaction.NewRegistry()
	lockMgr.StartDeadlockDetector(registry)
	defer lockMgr.StopDeadlockDetector()

	ctx := context.Background()
	txn := registry.Begin(transaction.ReadCommitted)

	start := time.Now()
	for i := 0; i < *rows; i++ {
		key := int64(i)
		t := tuple.New(key, []byte(fmt.Sprintf("row-%d", i)))
		rid, err := file.Insert(t)
		if err != nil {
			log.Fatalf("insert %d failed: %v", i, err)
		}
		if err := lockMgr.LockWrite(ctx, txn, rid); err != nil {
			log.Fatalf("lock %d failed: %v", i, err)
		}
		if _, err := tree.Insert(key, rid); err != nil {
			log.Fatalf("index insert %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	reads, writes := dm.Stats()
	fmt.Printf("inserted %d rows in %s (%.0f rows/sec)\n", *rows, elapsed, float64(*rows)/elapsed.Seconds())
	fmt.Printf("disk reads=%d writes=%d\n", reads, writes)

	if err := pool.FlushAllPages(ctx); err != nil {
		log.Fatalf("flush failed: %v", err)
	}

	scanned := 0
	it := tree.Seek(0)
	defer it.Close()
	for it.Valid() {
		scanned++
		it.Next()
	}
	fmt.Printf("index scan visited %d entries\n", scanned)
}
