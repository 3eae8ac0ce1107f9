package indexer

import "github.com/user/greptbot/internal/gateway"

// progressEstimator produces a user-facing progress percentage for a
// non-terminal indexing run. When upstream reports file counts the real
// fraction is used; otherwise a synthetic estimate grows by a fixed step per
// poll. Either way the value stays below 100 so the bot never shows a false
// completion.
type progressEstimator struct {
	synthetic int
}

const (
	syntheticStep = 10
	syntheticCap  = 90
	realCap       = 99
)

// estimate returns the progress for one poll of a non-terminal status.
func (p *progressEstimator) estimate(info *gateway.RepoInfo) int {
	if info != nil && info.NumFiles > 0 {
		pct := info.FilesProcessed * 100 / info.NumFiles
		if pct > realCap {
			pct = realCap
		}
		if pct < 0 {
			pct = 0
		}
		return pct
	}
	p.synthetic += syntheticStep
	if p.synthetic > syntheticCap {
		p.synthetic = syntheticCap
	}
	return p.synthetic
}
