package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"htmlsnap/snap"
)

func main() {
	url := "https://example.com/"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	opts := snap.DefaultOptions()
	f := snap.NewFetcher(opts)
	loader := snap.NewStaticLoader(f, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("fetch %s", url)
	text, err := f.FetchText(ctx, url, "text/html,application/xhtml+xml")
	if err != nil {
		log.Fatal(err)
	}
	frame, err := loader.Load(ctx, text, url)
	if err != nil {
		log.Fatal(err)
	}
	defer frame.Detach()
	sn, err := frame.Capture(ctx)
	if err != nil {
		log.Fatal(err)
	}
	flat := snap.Flatten(sn.Stylesheets)
	fmt.Printf("/* %d sheets, base=%s, viewport=%dx%d */\n", len(sn.Stylesheets), sn.BaseHref, sn.Width, sn.Height)
	fmt.Print(flat.Text)
	fmt.Println("/* css references */")
	for _, ref := range flat.Refs {
		fmt.Printf("css  %s\n", ref)
	}
	for _, ref := range snap.ExtractBodyRefs(sn.Body) {
		fmt.Printf("body %s\n", ref)
	}
}
