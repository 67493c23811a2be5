// Write a handful of records through the buffer pool and read them back.
// Usage: go run ./cmd/pagecache -db /tmp/pagecache.db -records 200
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jobala/pagecache/buffer"
	"github.com/jobala/pagecache/config"
	"github.com/jobala/pagecache/logging"
	"github.com/jobala/pagecache/storage/disk"
	"github.com/jobala/pagecache/util"
)

type record struct {
	Id   int64
	Name string
	Tags []string
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	dbPath := flag.String("db", "", "database file, overrides db_path")
	records := flag.Int("records", 100, "number of records to write")
	flag.Parse()

	if err := run(*configPath, *dbPath, *records); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dbPath string, records int) (err error) {
	opts := config.DefaultOptions()
	if configPath != "" {
		if opts, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if dbPath != "" {
		opts.DBPath = dbPath
	}

	if err := logging.Init(opts.Log); err != nil {
		return err
	}
	defer logging.Close()
	log := logging.WithComponent("cmd")

	diskMgr, err := disk.Open(opts.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, diskMgr.Close())
	}()

	scheduler := disk.NewScheduler(diskMgr)
	defer scheduler.Shutdown()

	bufferMgr, err := buffer.NewBufferpoolManagerWithOptions(opts, scheduler)
	if err != nil {
		return err
	}

	ids := make([]disk.PageID, 0, records)
	for i := range records {
		pageId, frame, err := bufferMgr.NewPage()
		if err != nil {
			return err
		}

		data, err := util.ToByteSlice(record{
			Id:   int64(pageId),
			Name: fmt.Sprintf("record-%d", i),
			Tags: []string{"demo"},
		}, disk.PAGE_SIZE)
		if err != nil {
			return err
		}
		copy(frame.Data(), data)

		if err := bufferMgr.UnpinPage(pageId, true); err != nil {
			return err
		}
		ids = append(ids, pageId)
	}

	if err := bufferMgr.FlushAllPages(); err != nil {
		return err
	}

	for _, pageId := range ids {
		guard, err := bufferMgr.ReadPage(pageId)
		if err != nil {
			return err
		}
		rec, err := util.ToStruct[record](guard.GetData())
		guard.Drop()
		if err != nil {
			return err
		}
		if rec.Id != int64(pageId) {
			return fmt.Errorf("page %d holds record for page %d", pageId, rec.Id)
		}
		logging.WithPage(int64(pageId)).Debug("read record", "name", rec.Name)
	}

	stats := bufferMgr.Stats()
	log.Info("workload done",
		"records", records,
		"pool_size", stats.PoolSize,
		"resident", stats.Resident,
		"dirty", stats.Dirty,
		"evictable", stats.Evictable,
		"disk_reads", diskMgr.NumReads(),
		"disk_writes", diskMgr.NumWrites(),
	)

	return nil
}
