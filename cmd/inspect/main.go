package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Dumps the relay database without taking its lock, so it works against a running server.
func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan (user:, conv:, msg:, seq:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	counts := make(map[string]int)
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			kind := kindOf(key)
			counts[kind]++

			err := item.Value(func(v []byte) error {
				table.Append([]string{key, paint(kind), describe(kind, v)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	printSummary(counts)
}

func kindOf(key string) string {
	switch {
	case strings.HasPrefix(key, "user:id:"):
		return "USER"
	case strings.HasPrefix(key, "user:name:"):
		return "USERNAME"
	case strings.HasPrefix(key, "conv:id:"):
		return "CONVERSATION"
	case strings.HasPrefix(key, "conv:pair:"):
		return "PAIR"
	case strings.HasPrefix(key, "conv:member:"):
		return "MEMBER"
	case strings.HasPrefix(key, "msg:"):
		return "MESSAGE"
	case strings.HasPrefix(key, "seq:"):
		return "SEQUENCE"
	default:
		return "UNKNOWN"
	}
}

func paint(kind string) string {
	switch kind {
	case "USER", "USERNAME":
		return color.Cyan.Sprint(kind)
	case "CONVERSATION", "PAIR", "MEMBER":
		return color.Yellow.Sprint(kind)
	case "MESSAGE":
		return color.Green.Sprint(kind)
	case "SEQUENCE":
		return color.Magenta.Sprint(kind)
	default:
		return color.Red.Sprint(kind)
	}
}

func describe(kind string, v []byte) string {
	switch kind {
	case "USER", "CONVERSATION", "MESSAGE":
		var fields map[string]any
		if err := json.Unmarshal(v, &fields); err != nil {
			return color.Red.Sprintf("invalid json: %v", err)
		}
		// Never print hashes, even in a local dump
		delete(fields, "password_hash")
		if ts, ok := fields["timestamp"].(float64); ok {
			fields["timestamp"] = time.Unix(0, int64(ts)).UTC().Format(time.RFC3339Nano)
		}
		return formatFields(fields)
	case "SEQUENCE":
		if len(v) == 8 {
			return fmt.Sprintf("lease=%d", binary.BigEndian.Uint64(v))
		}
		return fmt.Sprintf("%x", v)
	case "MEMBER":
		return ""
	default:
		return string(bytes.TrimSpace(v))
	}
}

func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := fmt.Sprint(fields[k])
		if f, ok := fields[k].(float64); ok {
			value = fmt.Sprintf("%.0f", f)
		}
		parts = append(parts, k+"="+value)
	}
	return strings.Join(parts, " ")
}

func printSummary(counts map[string]int) {
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	fmt.Println()
	for _, kind := range kinds {
		fmt.Printf("%s %d\n", paint(kind), counts[kind])
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			// A crashed writer left an unfinished value log: truncate once in write mode
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
