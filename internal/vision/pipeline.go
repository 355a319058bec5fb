package vision

// Params configures the post-inference pipeline stages.
type Params struct {
	TensorSide   int
	NumClasses   int
	ConfMin      float32
	AreaMinFrac  float32
	IoUThreshold float32
	Labels       []string        // class index -> label name
	AllowLabels  map[string]bool // labels the tracker cares about
}

// Pipeline turns raw model output into detections in source image
// space: decode, filter, suppress, rescale.
type Pipeline struct {
	params     Params
	allowClass map[int]bool
}

// NewPipeline creates a pipeline, resolving the allow-list to class
// indices once up front.
func NewPipeline(params Params) *Pipeline {
	allowClass := make(map[int]bool, len(params.AllowLabels))
	for i, label := range params.Labels {
		if params.AllowLabels[label] {
			allowClass[i] = true
		}
	}
	return &Pipeline{
		params:     params,
		allowClass: allowClass,
	}
}

// Run processes a raw detection tensor through the full post-inference
// pipeline. The transform and original dimensions must come from the
// Preprocess call that produced the model input.
func (p *Pipeline) Run(raw *RawTensor, tf Transform, origW, origH int) ([]Detection, error) {
	boxes, err := Decode(raw, p.params.NumClasses)
	if err != nil {
		return nil, err
	}

	boxes = Filter(boxes, FilterParams{
		ConfMin:     p.params.ConfMin,
		AreaMinFrac: p.params.AreaMinFrac,
		TensorSide:  p.params.TensorSide,
		AllowClass:  p.allowClass,
	})

	boxes = Suppress(boxes, p.params.IoUThreshold)

	return Rescale(boxes, tf, origW, origH, p.params.Labels), nil
}
