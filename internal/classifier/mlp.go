package classifier

import (
	"context"
	"math"
	"math/rand/v2"
)

// MLPParams configures MLP.
type MLPParams struct {
	Hidden       []int   `json:"hidden"`
	MaxIter      int     `json:"max_iter"`
	LearningRate float64 `json:"learning_rate"`
	Alpha        float64 `json:"alpha"`
	BatchSize    int     `json:"batch_size"`
	Tol          float64 `json:"tol"`
	// NoChange is the number of epochs without a Tol improvement before stopping.
	NoChange int `json:"no_change"`
}

// DefaultMLPParams returns the standard (100, 50) network trained for up to 500 epochs.
func DefaultMLPParams() MLPParams {
	return MLPParams{
		Hidden:       []int{100, 50},
		MaxIter:      500,
		LearningRate: 1e-3,
		Alpha:        1e-4,
		BatchSize:    200,
		Tol:          1e-4,
		NoChange:     10,
	}
}

// Adam optimizer constants.
const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// MLP is a feed-forward network with ReLU hidden layers and a softmax output,
// trained on cross-entropy with Adam.
type MLP struct {
	Params      MLPParams     `json:"params"`
	Seed        uint64        `json:"seed"`
	ClassLabels []string      `json:"classes"`
	Weights     [][][]float64 `json:"weights"`
	Biases      [][]float64   `json:"biases"`
}

// NewMLP creates an unfitted network.
func NewMLP(params MLPParams, seed uint64) *MLP {
	return &MLP{Params: params, Seed: seed}
}

type mlpGrads struct {
	w [][][]float64
	b [][]float64
}

func newMLPGrads(weights [][][]float64, biases [][]float64) mlpGrads {
	g := mlpGrads{w: make([][][]float64, len(weights)), b: make([][]float64, len(biases))}
	for l := range weights {
		g.w[l] = make([][]float64, len(weights[l]))
		for i := range weights[l] {
			g.w[l][i] = make([]float64, len(weights[l][i]))
		}
		g.b[l] = make([]float64, len(biases[l]))
	}
	return g
}

func (g mlpGrads) reset() {
	for l := range g.w {
		for i := range g.w[l] {
			clear(g.w[l][i])
		}
		clear(g.b[l])
	}
}

// Fit trains the network with mini-batch Adam.
func (m *MLP) Fit(ctx context.Context, X [][]float64, y []string) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	classes, yi := encodeLabels(y)
	m.ClassLabels = classes
	rng := rand.New(rand.NewPCG(m.Seed, m.Seed))

	sizes := append([]int{len(X[0])}, m.Params.Hidden...)
	sizes = append(sizes, len(classes))
	m.Weights = make([][][]float64, len(sizes)-1)
	m.Biases = make([][]float64, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		bound := math.Sqrt(6 / float64(in+out))
		m.Weights[l] = make([][]float64, in)
		for i := range m.Weights[l] {
			m.Weights[l][i] = make([]float64, out)
			for j := range m.Weights[l][i] {
				m.Weights[l][i][j] = (rng.Float64()*2 - 1) * bound
			}
		}
		m.Biases[l] = make([]float64, out)
		for j := range m.Biases[l] {
			m.Biases[l][j] = (rng.Float64()*2 - 1) * bound
		}
	}

	grads := newMLPGrads(m.Weights, m.Biases)
	mom := newMLPGrads(m.Weights, m.Biases)
	vel := newMLPGrads(m.Weights, m.Biases)

	batch := m.Params.BatchSize
	if batch <= 0 || batch > len(X) {
		batch = len(X)
	}
	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	best := math.Inf(1)
	stale := 0
	step := 0
	for epoch := 0; epoch < m.Params.MaxIter; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var loss float64
		for start := 0; start < len(order); start += batch {
			end := min(start+batch, len(order))
			grads.reset()
			for _, i := range order[start:end] {
				loss += m.backprop(X[i], yi[i], grads)
			}
			step++
			m.adamStep(grads, mom, vel, float64(end-start), step)
		}
		loss /= float64(len(X))
		loss += m.l2Penalty() / float64(len(X))

		if loss > best-m.Params.Tol {
			stale++
		} else {
			stale = 0
		}
		if loss < best {
			best = loss
		}
		if m.Params.NoChange > 0 && stale >= m.Params.NoChange {
			break
		}
	}
	return nil
}

// forward returns the activations of every layer, input first.
func (m *MLP) forward(x []float64) [][]float64 {
	acts := make([][]float64, len(m.Weights)+1)
	acts[0] = x
	for l, W := range m.Weights {
		out := append([]float64(nil), m.Biases[l]...)
		for i, xi := range acts[l] {
			if xi == 0 {
				continue
			}
			for j, w := range W[i] {
				out[j] += xi * w
			}
		}
		if l == len(m.Weights)-1 {
			out = softmax(out)
		} else {
			for j := range out {
				out[j] = math.Max(0, out[j])
			}
		}
		acts[l+1] = out
	}
	return acts
}

// backprop accumulates the cross-entropy gradient of one sample and returns its loss.
func (m *MLP) backprop(x []float64, target int, g mlpGrads) float64 {
	acts := m.forward(x)
	out := acts[len(acts)-1]
	loss := -math.Log(math.Max(out[target], 1e-15))

	delta := append([]float64(nil), out...)
	delta[target] -= 1
	for l := len(m.Weights) - 1; l >= 0; l-- {
		in := acts[l]
		for i, xi := range in {
			if xi == 0 {
				continue
			}
			for j, d := range delta {
				g.w[l][i][j] += xi * d
			}
		}
		for j, d := range delta {
			g.b[l][j] += d
		}
		if l == 0 {
			break
		}
		prev := make([]float64, len(in))
		for i := range prev {
			if in[i] <= 0 {
				continue
			}
			var sum float64
			for j, d := range delta {
				sum += m.Weights[l][i][j] * d
			}
			prev[i] = sum
		}
		delta = prev
	}
	return loss
}

func (m *MLP) adamStep(g, mom, vel mlpGrads, batch float64, step int) {
	lr := m.Params.LearningRate * math.Sqrt(1-math.Pow(adamBeta2, float64(step))) / (1 - math.Pow(adamBeta1, float64(step)))
	update := func(p *float64, grad float64, mo, ve *float64) {
		*mo = adamBeta1*(*mo) + (1-adamBeta1)*grad
		*ve = adamBeta2*(*ve) + (1-adamBeta2)*grad*grad
		*p -= lr * (*mo) / (math.Sqrt(*ve) + adamEpsilon)
	}
	for l := range m.Weights {
		for i := range m.Weights[l] {
			for j := range m.Weights[l][i] {
				grad := g.w[l][i][j]/batch + m.Params.Alpha*m.Weights[l][i][j]/batch
				update(&m.Weights[l][i][j], grad, &mom.w[l][i][j], &vel.w[l][i][j])
			}
		}
		for j := range m.Biases[l] {
			update(&m.Biases[l][j], g.b[l][j]/batch, &mom.b[l][j], &vel.b[l][j])
		}
	}
}

func (m *MLP) l2Penalty() float64 {
	var sum float64
	for _, W := range m.Weights {
		for _, row := range W {
			for _, w := range row {
				sum += w * w
			}
		}
	}
	return 0.5 * m.Params.Alpha * sum
}

// Predict returns the most probable class per row.
func (m *MLP) Predict(X [][]float64) []string {
	return argmaxLabels(m.PredictProba(X), m.ClassLabels)
}

// PredictProba returns the softmax output per row.
func (m *MLP) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		acts := m.forward(x)
		out[i] = acts[len(acts)-1]
	}
	return out
}

// Classes returns the fitted class labels.
func (m *MLP) Classes() []string {
	return m.ClassLabels
}
