package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"urlshortener.local/internal/app/account"
)

// hashpass 用和服务相同的 bcrypt 配置生成口令哈希，方便手工插入账号。
func main() {
	cost := flag.Int("cost", 0, "bcrypt cost, 0 means bcrypt.DefaultCost")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/tools/hashpass [-cost N] <password>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	hasher, err := account.NewBcryptHasher(*cost)
	if err != nil {
		log.Fatal(err)
	}
	hash, err := hasher.Hash(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(hash)
}
