package srv

import (
	"github.com/quka-ai/kbcore/pkg/ai"
)

type Srv struct {
	ai *AI
}

type ApplyFunc func(s *Srv) error

func SetupSrvs(opts ...ApplyFunc) (*Srv, error) {
	a := &Srv{ai: &AI{}}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func ApplyAI(cfg AIConfig) ApplyFunc {
	return func(s *Srv) error {
		a, err := SetupAI(cfg)
		if err != nil {
			return err
		}
		s.ai = a
		return nil
	}
}

// ApplyDrivers installs already constructed drivers. reranker may be nil.
func ApplyDrivers(embedder ai.Embedder, model string, reranker ai.Reranker) ApplyFunc {
	return func(s *Srv) error {
		s.ai = &AI{embedDefault: embedder, embedModel: model, rerankDefault: reranker}
		if w, ok := reranker.(Warmer); ok {
			s.ai.warmer = w
		}
		return nil
	}
}

func (s *Srv) AI() *AI {
	return s.ai
}
