// Command train fits a novelty model artifact from a JSON file of labeled
// alert outcomes. The pipeline never writes artifacts; this tool is the
// only producer.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"AlertPulse/internal/scoring"
)

func main() {
	input := flag.String("outcomes", "", "path to JSON array of labeled outcomes")
	output := flag.String("out", "data/ml_models/alert_scorer.json", "artifact output path")
	version := flag.String("version", "", "artifact version string")
	wConf := flag.Float64("w-confidence", 0.5, "rule confidence weight")
	wNov := flag.Float64("w-novelty", 0.3, "novelty weight")
	wRec := flag.Float64("w-recency", 0.2, "recency weight")
	halfLife := flag.Float64("recency-half-life", 900, "recency half-life in seconds")
	flag.Parse()

	if *input == "" || *version == "" {
		flag.Usage()
		os.Exit(2)
	}

	b, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("read outcomes: %v", err)
	}
	var outcomes []scoring.Outcome
	if err := json.Unmarshal(b, &outcomes); err != nil {
		log.Fatalf("parse outcomes: %v", err)
	}

	artifact, err := scoring.Fit(outcomes, *version, scoring.Weights{
		Confidence: *wConf,
		Novelty:    *wNov,
		Recency:    *wRec,
	}, *halfLife)
	if err != nil {
		log.Fatalf("fit: %v", err)
	}

	if err := artifact.Save(*output); err != nil {
		log.Fatalf("save artifact: %v", err)
	}
	log.Printf("artifact %s written to %s (%d samples, %d features)",
		artifact.Version, *output, artifact.TrainedSamples, len(artifact.Features))
}
