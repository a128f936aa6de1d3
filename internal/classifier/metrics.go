package classifier

import "sort"

// ClassReport holds per-class precision, recall and F1.
type ClassReport struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Evaluation summarizes predictions against ground truth. The confusion
// matrix is indexed [true][predicted] in Classes order.
type Evaluation struct {
	Accuracy        float64                `json:"accuracy"`
	Classes         []string               `json:"classes"`
	PerClass        map[string]ClassReport `json:"per_class"`
	MacroAvg        ClassReport            `json:"macro_avg"`
	WeightedAvg     ClassReport            `json:"weighted_avg"`
	ConfusionMatrix [][]int                `json:"confusion_matrix"`
	Predictions     []string               `json:"-"`
	Probabilities   [][]float64            `json:"-"`
}

// Accuracy is the fraction of matching labels; 0 for empty input.
func Accuracy(yTrue, yPred []string) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// Evaluate computes the classification report of yPred against yTrue over the
// union of labels seen in either. Undefined ratios are reported as 0.
func Evaluate(yTrue, yPred []string) Evaluation {
	seen := make(map[string]struct{})
	for _, l := range yTrue {
		seen[l] = struct{}{}
	}
	for _, l := range yPred {
		seen[l] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Strings(classes)
	pos := make(map[string]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}

	cm := make([][]int, len(classes))
	for i := range cm {
		cm[i] = make([]int, len(classes))
	}
	for i := range yTrue {
		cm[pos[yTrue[i]]][pos[yPred[i]]]++
	}

	ev := Evaluation{
		Accuracy:        Accuracy(yTrue, yPred),
		Classes:         classes,
		PerClass:        make(map[string]ClassReport, len(classes)),
		ConfusionMatrix: cm,
	}
	var totalSupport int
	for k, c := range classes {
		var tp, predicted, actual int
		tp = cm[k][k]
		for j := range classes {
			predicted += cm[j][k]
			actual += cm[k][j]
		}
		r := ClassReport{Support: actual}
		r.Precision = ratio(tp, predicted)
		r.Recall = ratio(tp, actual)
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		ev.PerClass[c] = r

		ev.MacroAvg.Precision += r.Precision
		ev.MacroAvg.Recall += r.Recall
		ev.MacroAvg.F1 += r.F1
		ev.WeightedAvg.Precision += r.Precision * float64(actual)
		ev.WeightedAvg.Recall += r.Recall * float64(actual)
		ev.WeightedAvg.F1 += r.F1 * float64(actual)
		totalSupport += actual
	}
	if n := float64(len(classes)); n > 0 {
		ev.MacroAvg.Precision /= n
		ev.MacroAvg.Recall /= n
		ev.MacroAvg.F1 /= n
	}
	ev.MacroAvg.Support = totalSupport
	if totalSupport > 0 {
		s := float64(totalSupport)
		ev.WeightedAvg.Precision /= s
		ev.WeightedAvg.Recall /= s
		ev.WeightedAvg.F1 /= s
	}
	ev.WeightedAvg.Support = totalSupport
	return ev
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
