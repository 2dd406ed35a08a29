package model

import (
	"errors"
	"fmt"

	"github.com/sora-lab/inga-quant/internal/dataset"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

// TargetColumn is the canonical forward-return target. Every training call
// must use exactly this column.
const TargetColumn = "forward_return_5d"

// Model families
const (
	TypeRidge      = "ridge"
	TypeElasticNet = "elastic_net"
)

// ErrInsufficientData is returned when no rows carry a usable target.
// Callers that need a trained model for display only should catch this and
// degrade to a NO_TRADE decision instead of crashing the run.
var ErrInsufficientData = errors.New("no training rows with known forward_return_5d")

// Config is an immutable model configuration
type Config struct {
	ModelType string
	Alpha     float64
	L1Ratio   float64 // elastic net only
	Target    string
}

// DefaultConfig returns the production ridge setup
func DefaultConfig() Config {
	return Config{
		ModelType: TypeRidge,
		Alpha:     1.0,
		L1Ratio:   0.5,
		Target:    TargetColumn,
	}
}

// TrainResult is the output of one model fit. Never mutated after creation.
type TrainResult struct {
	FeatureNames []string
	Coef         map[string]float64
	Intercept    float64
	Scaler       *Scaler
	FeatureMeans map[string]float64 // training-fold means, reused for predict-time imputation
	TrainRows    int
	TrainIC      float64 // in-sample Spearman IC
}

// Train fits the configured regressor on the rows with a non-null target.
//
// Requested features absent from the frame are dropped with a warning.
// Missing per-row values are imputed with the training-fold mean, features
// are standardised with a scaler fitted on the training rows only, and the
// in-sample skill is the Spearman rank IC of fitted predictions vs targets.
func Train(frame *dataset.Frame, featureNames []string, cfg Config, log *logger.Logger) (*TrainResult, error) {
	if cfg.Target != TargetColumn {
		panic(fmt.Sprintf("model target must be %q, got %q", TargetColumn, cfg.Target))
	}

	present, missing := frame.PresentColumns(featureNames)
	if len(missing) > 0 {
		log.Warnf("Missing feature columns (will drop): %v", missing)
	}
	if len(present) == 0 {
		return nil, fmt.Errorf("no usable feature columns out of %v", featureNames)
	}

	trainRows := frame.WithTarget()
	if len(trainRows) == 0 {
		return nil, ErrInsufficientData
	}

	means := columnMeans(trainRows, present)

	X := designMatrix(trainRows, present, means)
	y := make([]float64, len(trainRows))
	for i, r := range trainRows {
		y[i] = *r.Target
	}

	scaler := FitScaler(X)
	Xs := scaler.Transform(X)

	beta, err := fit(Xs, y, cfg)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", cfg.ModelType, err)
	}

	// Features are centred, so the unpenalised intercept is the target mean
	intercept := Mean(y)

	coef := make(map[string]float64, len(present))
	for j, name := range present {
		coef[name] = beta[j]
	}

	preds := make([]float64, len(Xs))
	for i := range Xs {
		preds[i] = dot(beta, Xs[i]) + intercept
	}
	trainIC := SpearmanIC(preds, y)

	log.Infof("Model trained: %s alpha=%.3f features=%d rows=%d IS-IC=%.4f",
		cfg.ModelType, cfg.Alpha, len(present), len(trainRows), trainIC)

	return &TrainResult{
		FeatureNames: present,
		Coef:         coef,
		Intercept:    intercept,
		Scaler:       scaler,
		FeatureMeans: means,
		TrainRows:    len(trainRows),
		TrainIC:      trainIC,
	}, nil
}

// Predict scores rows with a fitted model, aligned to the input order.
// Missing values are imputed with the training-fold mean; a feature wholly
// absent from the prediction rows is filled with 0. The training scaler is
// reused unmodified.
func Predict(res *TrainResult, rows []dataset.Row) []float64 {
	if len(rows) == 0 {
		return nil
	}

	colPresent := make(map[string]bool, len(res.FeatureNames))
	for _, name := range res.FeatureNames {
		for i := range rows {
			if _, ok := rows[i].Value(name); ok {
				colPresent[name] = true
				break
			}
		}
	}

	X := make([][]float64, len(rows))
	for i := range rows {
		vec := make([]float64, len(res.FeatureNames))
		for j, name := range res.FeatureNames {
			if v, ok := rows[i].Value(name); ok {
				vec[j] = v
			} else if colPresent[name] {
				vec[j] = res.FeatureMeans[name]
			} else {
				vec[j] = 0.0
			}
		}
		X[i] = vec
	}

	Xs := res.Scaler.Transform(X)

	beta := make([]float64, len(res.FeatureNames))
	for j, name := range res.FeatureNames {
		beta[j] = res.Coef[name]
	}

	out := make([]float64, len(Xs))
	for i := range Xs {
		out[i] = dot(beta, Xs[i]) + res.Intercept
	}
	return out
}

func fit(X [][]float64, y []float64, cfg Config) ([]float64, error) {
	switch cfg.ModelType {
	case TypeElasticNet:
		return solveElasticNet(X, y, cfg.Alpha, cfg.L1Ratio)
	case TypeRidge:
		return solveRidge(X, y, cfg.Alpha)
	default:
		return nil, fmt.Errorf("unknown model type %q", cfg.ModelType)
	}
}

// columnMeans computes per-feature means over the rows where the value is
// present. A feature with no present values gets mean 0.
func columnMeans(rows []dataset.Row, features []string) map[string]float64 {
	means := make(map[string]float64, len(features))
	for _, name := range features {
		var sum float64
		var cnt int
		for i := range rows {
			if v, ok := rows[i].Value(name); ok {
				sum += v
				cnt++
			}
		}
		if cnt > 0 {
			means[name] = sum / float64(cnt)
		} else {
			means[name] = 0
		}
	}
	return means
}

// designMatrix builds the feature matrix with mean imputation
func designMatrix(rows []dataset.Row, features []string, means map[string]float64) [][]float64 {
	X := make([][]float64, len(rows))
	for i := range rows {
		vec := make([]float64, len(features))
		for j, name := range features {
			if v, ok := rows[i].Value(name); ok {
				vec[j] = v
			} else {
				vec[j] = means[name]
			}
		}
		X[i] = vec
	}
	return X
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
