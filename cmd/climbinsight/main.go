package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	climbinsight "github.com/climbinsight/climbinsight-go"
	"github.com/climbinsight/climbinsight-go/internal/config"
	"github.com/climbinsight/climbinsight-go/internal/utils"
	"github.com/climbinsight/climbinsight-go/pkg/types"
)

func main() {
	var configPath, apiURL string
	var imagePath, pointsArg string
	var dispW, dispH float64
	var gym, grade, style string
	var tryCount int
	var generate bool
	var fetch, copyCaption bool
	var outDir string

	flag.StringVar(&configPath, "config", "", "config file path (defaults are used when empty)")
	flag.StringVar(&apiURL, "url", "", "backend base URL (overrides config and environment)")

	flag.StringVar(&imagePath, "image", "", "wall photo to process (jpg/png/webp)")
	flag.StringVar(&pointsArg, "points", "", "selected holds as x,y;x,y in display pixels")
	flag.Float64Var(&dispW, "dispw", 0, "displayed image width the points refer to (0 = native)")
	flag.Float64Var(&dispH, "disph", 0, "displayed image height the points refer to (0 = native)")

	flag.StringVar(&gym, "gym", "", "gym name")
	flag.StringVar(&grade, "grade", "", "problem grade (e.g. 3級)")
	flag.StringVar(&style, "style", "", "problem style (e.g. スラブ)")
	flag.IntVar(&tryCount, "try", 0, "number of tries")
	flag.BoolVar(&generate, "generate", false, "generate a post text for the problem")

	flag.BoolVar(&fetch, "result", false, "wait for the result of the in-flight session")
	flag.BoolVar(&copyCaption, "copy", false, "copy the post text to the clipboard after fetching")
	flag.StringVar(&outDir, "out", "", "output directory for the downloaded image")

	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if apiURL != "" {
		cfg.Backend.BaseURL = apiURL
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	client, err := climbinsight.New(climbinsight.Options{
		BaseURL:          cfg.Backend.BaseURL,
		SessionStorePath: cfg.Session.StorePath,
		SubmitTimeout:    time.Duration(cfg.Backend.SubmitTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	ran := false

	if imagePath != "" {
		if !utils.IsImageFile(imagePath) || !utils.FileExists(imagePath) {
			log.Fatalf("%s is not an image file", imagePath)
		}

		points, err := parsePoints(pointsArg)
		if err != nil {
			log.Fatal(err)
		}

		sessionID, err := client.SubmitImage(ctx, imagePath, points, dispW, dispH)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("submitted %s with %d points, session %s", filepath.Base(imagePath), len(points), sessionID)
		ran = true
	}

	if gym != "" || style != "" {
		if !types.ValidGrade(grade) {
			log.Fatalf("Unknown grade %q, choose one of: %s", grade, strings.Join(types.Grades, " "))
		}
		err := client.GenerateContents(ctx, types.Contents{
			Grade:      grade,
			Gym:        gym,
			Style:      style,
			TryCount:   uint(tryCount),
			IsGenerate: generate,
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("contents submitted for session %s", client.Sessions().SessionID())
		ran = true
	}

	if fetch {
		result, err := client.FetchResult(ctx)
		if err != nil {
			log.Fatal(err)
		}

		if err := utils.EnsureDir(cfg.Output.Dir); err != nil {
			log.Fatal(err)
		}
		outPath := filepath.Join(cfg.Output.Dir, cfg.Output.FileName)
		if err := client.Presenter().SavePNG(ctx, *result, outPath); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", outPath)

		fmt.Println(result.Contents)
		if copyCaption {
			if err := client.Presenter().CopyCaption(*result); err != nil {
				log.Printf("clipboard copy failed: %v", err)
			}
			if msg := client.Presenter().Toast().Message(); msg != "" {
				log.Print(msg)
			}
		}
		ran = true
	}

	if !ran {
		log.Fatalf("usage: %s -image wall.jpg -points 120,340;200,180 | -gym NAME -style STYLE [-grade 3級] [-try 4] [-generate] | -result [-copy] [-out dir]", filepath.Base(os.Args[0]))
	}
}

// parsePoints parses "x,y;x,y" into a point list
func parsePoints(arg string) ([]types.Point, error) {
	if arg == "" {
		return nil, nil
	}

	var points []types.Point
	for _, pair := range strings.Split(arg, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid point %q (want x,y)", pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %v", pair, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %v", pair, err)
		}
		points = append(points, types.Point{X: x, Y: y})
	}
	return points, nil
}
