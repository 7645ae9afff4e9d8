package main

// RunningMetrics averages loss and accuracy over a window of processed
// batches. The window empties after every period batches.
type RunningMetrics struct {
	period  int
	batches int
	lossSum float64
	accSum  float64
}

// NewRunningMetrics returns accumulators that reset every period batches.
func NewRunningMetrics(period int) *RunningMetrics {
	if period <= 0 {
		panic("period must be positive")
	}
	return &RunningMetrics{period: period}
}

// Add records one processed batch and returns the running averages
// including it. When the batch completes a period, the accumulators are
// cleared after the averages are computed and reset is true.
func (r *RunningMetrics) Add(loss, accuracy float64) (runningLoss, runningAccuracy float64, reset bool) {
	r.batches++
	r.lossSum += loss
	r.accSum += accuracy
	runningLoss = r.lossSum / float64(r.batches)
	runningAccuracy = r.accSum / float64(r.batches)
	if r.batches == r.period {
		r.Reset()
		reset = true
	}
	return runningLoss, runningAccuracy, reset
}

// Batches is the number of batches in the current window.
func (r *RunningMetrics) Batches() int { return r.batches }

// Reset clears the window.
func (r *RunningMetrics) Reset() {
	r.batches = 0
	r.lossSum = 0
	r.accSum = 0
}

// Confusion counts binary classification outcomes, positive class 1.
type Confusion struct {
	TN, FP, FN, TP int
}

// NewConfusion tallies predictions against labels.
func NewConfusion(labels, predictions []int) Confusion {
	var c Confusion
	for i, l := range labels {
		p := predictions[i]
		switch {
		case l == 1 && p == 1:
			c.TP++
		case l == 1:
			c.FN++
		case p == 1:
			c.FP++
		default:
			c.TN++
		}
	}
	return c
}

// Merge adds o's counts.
func (c *Confusion) Merge(o Confusion) {
	c.TN += o.TN
	c.FP += o.FP
	c.FN += o.FN
	c.TP += o.TP
}

// Total is the number of examples counted.
func (c Confusion) Total() int { return c.TN + c.FP + c.FN + c.TP }

// ratio returns 0 when the denominator is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Precision is TP / (TP + FP), or 0 with no positive predictions.
func (c Confusion) Precision() float64 {
	return ratio(float64(c.TP), float64(c.TP+c.FP))
}

// Recall is TP / (TP + FN), or 0 with no positive labels.
func (c Confusion) Recall() float64 {
	return ratio(float64(c.TP), float64(c.TP+c.FN))
}

// F1 is the harmonic mean of precision and recall, or 0 when both are 0.
func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	return ratio(2*p*r, p+r)
}

// Accuracy is the fraction of correct predictions, or 0 when empty.
func (c Confusion) Accuracy() float64 {
	return ratio(float64(c.TP+c.TN), float64(c.Total()))
}

// Accuracy is the fraction of predictions equal to labels.
func Accuracy(labels, predictions []int) float64 {
	correct := 0
	for i, l := range labels {
		if predictions[i] == l {
			correct++
		}
	}
	return ratio(float64(correct), float64(len(labels)))
}
