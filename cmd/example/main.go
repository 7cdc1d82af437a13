package main

import (
	"fmt"
	"log"
	"time"

	"distritree/pkg/client"
	"distritree/pkg/common"
	"distritree/pkg/core/serialize"
)

func main() {
	fmt.Println("Connecting to distritree...")
	cli, err := client.Dial("localhost:9090")
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer cli.Close()

	for _, k := range []common.KeyType{10, 20, 5, 6, 12, 30, 7, 17} {
		resp, err := cli.Insert(k, []byte(fmt.Sprintf("value-%d", k)))
		if err != nil {
			log.Fatalf("Insert failed: %v", err)
		}
		fmt.Printf("Inserted %d -> %s\n", k, resp.Location.NodeID)
	}
	snap, err := cli.Snapshot()
	if err != nil {
		log.Fatalf("Snapshot failed: %v", err)
	}
	fmt.Print(serialize.Render(snap))

	for _, optimized := range []bool{true, false} {
		start := time.Now()
		resp, err := cli.Search(999, optimized)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		fmt.Printf("%-26s found=%v io_cost=%d path=%v (%v)\n", resp.Method, resp.Found, resp.IOCost, resp.PathTaken, time.Since(start))
	}
}
