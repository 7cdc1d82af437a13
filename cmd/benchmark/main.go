package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/btree"

	"distritree/pkg/common"
	"distritree/pkg/config"
	"distritree/pkg/core"
	"distritree/pkg/core/serialize"
	"distritree/pkg/protocol"
)

func main() {
	nKeys := flag.Int("n", 5000, "Number of keys to insert per run")
	orders := flag.String("orders", "4,8,32,128", "Comma separated branching orders")
	seed := flag.Int64("seed", 1, "Random seed")
	lookups := flag.Int("lookups", 1000, "Lookups per run")
	remote := flag.Bool("remote", false, "Also benchmark a running server over HTTP and TCP")
	httpAddr := flag.String("http", "http://localhost:5000", "HTTP API base URL")
	tcpAddr := flag.String("tcp", "localhost:9090", "TCP server address")
	flag.Parse()

	fmt.Printf("distritree I/O Cost Benchmark (N=%d, lookups=%d)\n", *nKeys, *lookups)
	fmt.Println("---------------------------------------------------")
	for _, s := range strings.Split(*orders, ",") {
		order, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			log.Fatalf("bad order %q: %v", s, err)
		}
		runCostBenchmark(order, *nKeys, *lookups, *seed)
	}

	if *remote {
		fmt.Println(">> Starting HTTP Benchmark (JSON over HTTP 1.1)...")
		httpDuration := runHTTPBenchmark(*httpAddr, *nKeys)
		fmt.Printf("   HTTP Time: %v | QPS: %.0f\n\n", httpDuration, float64(*nKeys)/httpDuration.Seconds())

		fmt.Println(">> Starting TCP Benchmark (Binary Protocol)...")
		tcpDuration := runTCPBenchmark(*tcpAddr, *nKeys)
		fmt.Printf("   TCP  Time: %v | QPS: %.0f\n", tcpDuration, float64(*nKeys)/tcpDuration.Seconds())
		fmt.Println("---------------------------------------------------")
		fmt.Printf("Conclusion: TCP is %.2fx faster than HTTP\n", httpDuration.Seconds()/tcpDuration.Seconds())
	}
}

type kv struct {
	key common.KeyType
}

// runCostBenchmark loads the same random keys into the tree and into
// google/btree, then compares indexed and linear lookups.
func runCostBenchmark(order, n, lookups int, seed int64) {
	cfg := config.Default()
	cfg.Tree.Order = order
	idx, err := core.NewTreeIndex(cfg, nil, nil)
	if err != nil {
		log.Fatalf("order %d: %v", order, err)
	}
	defer idx.Close()

	ref := btree.NewG[kv](32, func(a, b kv) bool { return a.key < b.key })
	rng := rand.New(rand.NewSource(seed))
	keys := make([]common.KeyType, n)

	start := time.Now()
	for i := range keys {
		keys[i] = common.KeyType(rng.Int63n(int64(n) * 10))
		if _, err := idx.Insert(keys[i], []byte("bench_data")); err != nil {
			log.Fatalf("insert: %v", err)
		}
	}
	insertTime := time.Since(start)

	start = time.Now()
	for _, k := range keys {
		ref.ReplaceOrInsert(kv{key: k})
	}
	refInsertTime := time.Since(start)

	snap, err := idx.Snapshot()
	if err != nil {
		log.Fatalf("snapshot: %v", err)
	}
	shape := serialize.Shape(snap)

	var indexedIO, scanIO int
	var indexedTime, scanTime, refTime time.Duration
	for i := 0; i < lookups; i++ {
		k := keys[rng.Intn(len(keys))]
		if i%4 == 0 {
			k = -1 - k // absent
		}

		t0 := time.Now()
		fast, err := idx.Search(k, true)
		indexedTime += time.Since(t0)
		if err != nil {
			log.Fatalf("search: %v", err)
		}

		t0 = time.Now()
		slow, err := idx.Search(k, false)
		scanTime += time.Since(t0)
		if err != nil {
			log.Fatalf("scan: %v", err)
		}

		t0 = time.Now()
		_, found := ref.Get(kv{key: k})
		refTime += time.Since(t0)

		if fast.Found != slow.Found || fast.Found != found {
			log.Fatalf("key %d: indexed=%v linear=%v reference=%v", k, fast.Found, slow.Found, found)
		}
		indexedIO += fast.IOCost
		scanIO += slow.IOCost
	}

	fmt.Printf(">> Order %d: height=%d nodes=%d leaves=%d keys=%d\n", order, shape.Height, shape.Nodes, shape.Leaves, shape.Keys)
	fmt.Printf("   Insert:  %v (google/btree %v)\n", insertTime, refInsertTime)
	fmt.Printf("   Indexed: avg io_cost %.2f | %v/op\n", float64(indexedIO)/float64(lookups), indexedTime/time.Duration(lookups))
	fmt.Printf("   Linear:  avg io_cost %.2f | %v/op\n", float64(scanIO)/float64(lookups), scanTime/time.Duration(lookups))
	fmt.Printf("   google/btree lookup: %v/op\n", refTime/time.Duration(lookups))
	if indexedIO > 0 {
		fmt.Printf("   Linear scan touches %.1fx more nodes\n\n", float64(scanIO)/float64(indexedIO))
	}
}

func runHTTPBenchmark(httpAddr string, n int) time.Duration {
	start := time.Now()
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 100,
		},
	}

	for i := 0; i < n; i++ {
		data := map[string]interface{}{
			"key":   i,
			"value": "bench_data",
		}
		jsonData, _ := json.Marshal(data)

		resp, err := client.Post(httpAddr+"/insert", "application/json", bytes.NewReader(jsonData))
		if err != nil {
			log.Fatalf("HTTP Req failed: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return time.Since(start)
}

func runTCPBenchmark(addr string, n int) time.Duration {
	start := time.Now()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("TCP Connect failed: %v", err)
	}
	defer conn.Close()

	val := []byte("bench_data")

	for i := 0; i < n; i++ {
		err := protocol.Encode(conn, protocol.OpInsert, protocol.EncodeKey(common.KeyType(i)), val)
		if err != nil {
			log.Fatalf("TCP Write failed: %v", err)
		}

		resp, err := protocol.Decode(conn)
		if err != nil {
			log.Fatalf("TCP Read failed: %v", err)
		}
		if resp.Op == protocol.RespErr {
			log.Fatalf("TCP insert %d: %s", i, resp.Value)
		}
	}

	return time.Since(start)
}
