package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"churnboard/customer"
	"churnboard/dataset"
	"churnboard/ml"
)

// labeled is one dataset row that passed validation.
type labeled struct {
	record customer.Record
	churn  string
}

func main() {
	bundleURL := flag.String("bundle", "", "model bundle URL or file:// path")
	csvPath := flag.String("csv", "", "labeled telco customer CSV file")
	model := flag.String("model", string(ml.RandomForestModel), "model to evaluate")
	flag.Parse()

	if *bundleURL == "" || *csvPath == "" {
		log.Fatal("bundle and csv are required")
	}
	id, err := ml.ParseModelID(*model)
	if err != nil {
		log.Fatal(err)
	}

	bundle, err := ml.NewLoader(ml.LoaderConfig{URL: *bundleURL}, nil, zap.NewNop()).Bundle(context.Background())
	if err != nil {
		log.Fatalf("failed to load bundle: %v", err)
	}

	rows, skipped, err := loadLabeled(*csvPath)
	if err != nil {
		log.Fatalf("failed to read dataset: %v", err)
	}
	log.Printf("rows=%d skipped=%d", len(rows), skipped)

	ev := evaluateModel(bundle, id, rows)
	fmt.Printf("model=%q version=%s scored=%d skipped=%d accuracy=%.3f precision=%.3f recall=%.3f\n",
		id, bundle.Version(), ev.Scored, skipped+ev.Skipped, ev.Accuracy, ev.Precision, ev.Recall)
}

func loadLabeled(path string) ([]labeled, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	columns, rows, err := dataset.ReadCSV(f, 0)
	if err != nil {
		return nil, 0, err
	}
	t := dataset.Table{Columns: columns, Rows: rows}
	churnIdx := t.Index(dataset.ChurnColumn)
	if churnIdx < 0 {
		return nil, 0, fmt.Errorf("dataset has no %s column", dataset.ChurnColumn)
	}

	var out []labeled
	skipped := 0
	for _, row := range rows {
		raw := make(map[string]any, len(columns))
		for i, c := range columns {
			if i < len(row) && row[i] != "" {
				raw[c] = row[i]
			}
		}
		// the raw telco export encodes SeniorCitizen as 0/1
		switch raw[customer.SeniorCitizen] {
		case "0":
			raw[customer.SeniorCitizen] = "No"
		case "1":
			raw[customer.SeniorCitizen] = "Yes"
		}
		rec, err := customer.FromMap(raw)
		if err != nil || churnIdx >= len(row) {
			skipped++
			continue
		}
		out = append(out, labeled{record: rec, churn: row[churnIdx]})
	}
	return out, skipped, nil
}

// evaluation summarizes one run. Skipped counts rows the model could not
// score; they are left out of every ratio.
type evaluation struct {
	Scored    int
	Skipped   int
	Accuracy  float64
	Precision float64
	Recall    float64
}

// evaluateModel treats "Yes" as the positive class.
func evaluateModel(bundle *ml.Bundle, id ml.ModelID, rows []labeled) evaluation {
	var ev evaluation
	var correct, truePositive, predictedPositive, actualPositive int

	for _, row := range rows {
		pred, err := score(bundle, id, row.record)
		if err != nil {
			ev.Skipped++
			continue
		}
		ev.Scored++
		if pred.Label == row.churn {
			correct++
		}
		if pred.Label == ml.LabelYes {
			predictedPositive++
		}
		if row.churn == ml.LabelYes {
			actualPositive++
			if pred.Label == ml.LabelYes {
				truePositive++
			}
		}
	}

	if ev.Scored == 0 {
		return ev
	}
	ev.Accuracy = float64(correct) / float64(ev.Scored)
	if predictedPositive > 0 {
		ev.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		ev.Recall = float64(truePositive) / float64(actualPositive)
	}
	return ev
}

func score(bundle *ml.Bundle, id ml.ModelID, rec customer.Record) (ml.Prediction, error) {
	assembled, err := bundle.Assemble(rec)
	if err != nil {
		return ml.Prediction{}, err
	}
	features, err := bundle.Transform(assembled)
	if err != nil {
		return ml.Prediction{}, err
	}
	return bundle.Predict(id, features)
}
