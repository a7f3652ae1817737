package analyzer

import (
	"github.com/gobwas/glob"

	"github.com/entrhq/autopilot/pkg/types"
)

// obstaclePatterns decides whether an obstacle kind follows a recognizable,
// re-triggerable pattern. Kind matching uses glob patterns so families of
// kinds (e.g. "modal*" covering site-specific modal variants reported by the
// agent) can be covered by one rule. Never-predictable kinds win over
// predictable ones.
type obstaclePatterns struct {
	predictable []glob.Glob
	never       []glob.Glob
}

// defaultObstaclePatterns encodes the built-in policy: consent and layout
// obstacles recur on every visit and can be re-triggered; anti-automation
// obstacles are intentionally unpredictable.
func defaultObstaclePatterns() *obstaclePatterns {
	return &obstaclePatterns{
		predictable: compilePatterns(
			string(types.ObstacleCookieBanner),
			string(types.ObstacleModal)+"*",
			string(types.ObstacleAd)+"*",
		),
		never: compilePatterns(
			string(types.ObstacleCaptcha),
			string(types.ObstacleRandomRedirect),
			string(types.ObstacleBotDetection),
		),
	}
}

func compilePatterns(patterns ...string) []glob.Glob {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		globs = append(globs, glob.MustCompile(p))
	}
	return globs
}

// Predictable reports whether the obstacle's kind matches a predictable
// pattern and no never-predictable pattern.
func (p *obstaclePatterns) Predictable(o types.Obstacle) bool {
	kind := string(o.Kind)
	for _, g := range p.never {
		if g.Match(kind) {
			return false
		}
	}
	for _, g := range p.predictable {
		if g.Match(kind) {
			return true
		}
	}
	return false
}
