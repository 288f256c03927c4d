package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bensupplier/catalog/internal/app"
	"github.com/bensupplier/catalog/internal/catalog"
	"github.com/bensupplier/catalog/internal/media"
)

// demoProducts seeds one product per storefront category.
var demoProducts = []catalog.CreateProductInput{
	{Name: "Travel Pillow", Price: "150000", Description: "Memory foam neck pillow with a washable cover.", Category: "Travel Comfort"},
	{Name: "Packing Cubes", Price: "89000", Description: "Set of four mesh packing cubes.", Category: "Travel Comfort"},
	{Name: "Bamboo Cutting Board", Price: "65000", Description: "Double-sided board with juice groove.", Category: "Home Essentials"},
	{Name: "USB-C Hub", Price: "249000", Description: "Seven ports including HDMI and SD card reader.", Category: "Tech Accessories"},
	{Name: "Reusable Straw Set", Price: "25000", Description: "Stainless steel straws with cleaning brush.", Category: "Budget Finds"},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, closeRepo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open repository: %v", err)
	}
	defer closeRepo()

	store := media.NewStore(media.Config{Root: cfg.MediaRoot, MaxFileSize: cfg.MediaMaxFileSize})
	svc := catalog.NewService(repo, store, catalog.ServiceConfig{
		Timeout:        cfg.StorageTimeout,
		MediaURLPrefix: cfg.MediaURLPrefix,
		Logger:         logger,
	})

	existing, err := svc.List(ctx)
	if err != nil {
		log.Fatalf("list products: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("→ Catalog already has %d products, skipping\n", len(existing))
		return
	}

	fmt.Println("→ Seeding products...")
	for _, in := range demoProducts {
		p, err := svc.Create(ctx, in)
		if err != nil {
			log.Fatalf("seed %q: %v", in.Name, err)
		}
		fmt.Printf("  %s %s\n", p.ID, p.Name)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}
