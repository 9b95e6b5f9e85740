// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	webcpp "github.com/folibis/WebCpp-sub000"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type uploadSummary struct {
	Name        string `json:"name"`
	FileName    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	Spooled     bool   `json:"spooled"`
}

func echo(req *webcpp.Request, resp *webcpp.Response) bool {
	resp.SetBody("message/http", req.AppendTo(nil))
	return true
}

func hello(req *webcpp.Request, resp *webcpp.Response) bool {
	name := req.Param("name")
	if name == "" {
		name = "world"
	}
	times := 1
	if n, err := strconv.Atoi(req.Param("times")); err == nil && n > 0 && n <= 100 {
		times = n
	}
	resp.SetText(strings.Repeat("Hello, "+name+"!\n", times))
	return true
}

func upload(req *webcpp.Request, resp *webcpp.Response) bool {
	form, err := req.Form()
	if err != nil {
		resp.Error(http.StatusBadRequest, err.Error())
		return true
	}
	summary := make([]uploadSummary, 0, len(form.Values))
	for _, v := range form.Values {
		summary = append(summary, uploadSummary{
			Name:        v.Name,
			FileName:    v.FileName,
			ContentType: v.ContentType,
			Size:        v.Size,
			Spooled:     v.Spooled(),
		})
	}
	if err = resp.SetJSON(summary); err != nil {
		resp.Error(http.StatusInternalServerError, err.Error())
	}
	return true
}

func private(req *webcpp.Request, resp *webcpp.Response) bool {
	resp.SetText("Welcome, " + req.Session().User() + "\n")
	return true
}

func chat(req *webcpp.Request, ws *webcpp.WSResponse, payload []byte) bool {
	if msg, ok := strings.CutPrefix(string(payload), "broadcast:"); ok {
		ws.Broadcast(webcpp.OpText, []byte(msg))
		return true
	}
	ws.Send(ws.MessageType, payload)
	return true
}

func main() {
	addr := flag.String("addr", webcpp.DefaultListenAddr, "the address to listen on")
	keepAlive := flag.Duration("keepalive", webcpp.DefaultKeepAlive, "idle time before a connection is closed")
	netLog := flag.Bool("netlog", false, "log network data")
	metricsAddr := flag.String("metrics", "", "if set, serve Prometheus metrics on this address")
	spool := flag.Bool("spool", false, "spool uploaded files to the temporary folder")
	tempDir := flag.String("tempdir", "", "folder for spooled uploads")
	user := flag.String("user", "admin", "user name for /private")
	pass := flag.String("pass", "", "password for /private, disabled if empty")
	upstream := flag.String("upstream", "", "if set, forward /proxy/* to this http URL")

	flag.Parse()

	reg := prometheus.NewRegistry()
	tcp := webcpp.NewTCPTransport(*addr)
	tcp.NetLog(*netLog)
	srv := &webcpp.Server{
		Transport:   tcp,
		KeepAlive:   *keepAlive,
		BodyOptions: webcpp.BodyOptions{Spool: *spool, TempDir: *tempDir},
		Metrics:     webcpp.NewMetrics(reg),
	}

	must := func(err error) {
		if err != nil {
			log.Fatal(err)
		}
	}

	must(srv.HandleFunc(http.MethodGet, "/", hello))
	must(srv.HandleFunc(http.MethodGet, "/hello/{name:alpha}[/{times:numeric}]", hello))
	must(srv.HandleFunc("", "/echo[/*]", echo))
	must(srv.HandleFunc(http.MethodPost, "/upload", upload))
	must(srv.HandleWSFunc("/ws", chat))

	if *pass != "" {
		creds := func(name string) (string, bool) {
			return *pass, name == *user
		}
		auth := webcpp.NewAuthRegistry(webcpp.BasicAuth{}, webcpp.NewDigestAuth(0))
		must(srv.Handle("", "/private[/*]", auth.Gate("webcppd", creds)))
		must(srv.HandleFunc(http.MethodGet, "/private[/*]", private))
	}

	if *upstream != "" {
		rp, err := webcpp.NewReverseProxy(*upstream, 0)
		must(err)
		rp.Prefix = "/proxy"
		must(srv.Handle("", "/proxy/*", rp))
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Println(http.ListenAndServe(*metricsAddr, mux))
		}()
	}

	must(srv.Init())
	fmt.Fprintf(os.Stdout, "http://%s/\n", tcp.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil && !webcpp.IsServerClosed(err) {
		log.Fatalln(err)
	}
}
