// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	webcpp "github.com/folibis/WebCpp-sub000"
)

// echoTester sends requests to the /echo route of a webcppd and checks
// that the echoed wire form matches what was sent.
type echoTester struct {
	BaseURL string
	Conn    *webcpp.ClientConn
	failed  int
}

func (e *echoTester) echoConn(ctx context.Context, cc *webcpp.ClientConn, req *webcpp.Request) {
	resp, err := cc.Do(ctx, req)
	if err != nil {
		fmt.Printf("No echo received for %v: %v\n", req, err)
		e.failed++
		return
	}
	expect := req.AppendTo(nil)
	if !bytes.Equal(expect, resp.Body) {
		fmt.Printf("expect:\n[%s]\nactual:\n[%s]\n", expect, resp.Body)
		e.failed++
	}
}

func (e *echoTester) echo(ctx context.Context, method, path string, body []byte) {
	req, err := webcpp.NewRequest(method, e.BaseURL+path, body)
	if err != nil {
		log.Fatal(err)
	}
	if e.Conn != nil {
		e.echoConn(ctx, e.Conn, req)
		return
	}
	cc, err := webcpp.NewClient().Dial(ctx, e.BaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer cc.Close()
	e.echoConn(ctx, cc, req)
}

func main() {
	count := flag.Int("n", 1000, "number of requests sent on a single kept-alive connection")
	timeout := flag.Duration("timeout", time.Minute, "time allowed for the whole run")

	flag.Parse()

	args := flag.Args()

	if len(args) < 1 {
		log.Fatal("missing required argument: base URL of a webcppd, like http://127.0.0.1:8080")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	et := &echoTester{BaseURL: args[0]}

	lotsaFooBar := bytes.Repeat([]byte("foobar! "), 8192)
	et.echo(ctx, http.MethodPost, "/echo/lotsafoobar", lotsaFooBar)
	et.echo(ctx, http.MethodGet, "/echo", nil)
	et.echo(ctx, http.MethodPut, "/echo/meh", []byte("foo\nbar"))
	et.echo(ctx, http.MethodPut, "/echo/meh?x=1&y=%20", []byte("baz"))

	cc, err := webcpp.NewClient().Dial(ctx, et.BaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer cc.Close()
	et.Conn = cc
	for n := 0; n < *count; n++ {
		et.echo(ctx, http.MethodGet, "/echo", nil)
		et.echo(ctx, http.MethodPut, "/echo/meh", []byte("foo"))
	}

	if et.failed > 0 {
		fmt.Printf("%d echoes failed\n", et.failed)
		os.Exit(1)
	}
}
