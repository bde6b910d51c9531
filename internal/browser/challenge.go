package browser

import "strings"

// Маркеры anti-bot interstitial страниц.
var (
	challengeTitleMarkers = []string{
		"just a moment",
		"please wait",
		"attention required",
		"checking your browser",
	}

	challengeContentMarkers = []string{
		"cf-browser-verification",
		"cf_chl_opt",
		"cf-challenge-running",
		"cf-please-wait",
		"jschl-answer",
		"_cf_chl_tk",
	}
)

// DetectChallenge проверяет title и content на маркеры challenge-страницы.
func DetectChallenge(title, content string) bool {
	t := strings.ToLower(title)
	for _, marker := range challengeTitleMarkers {
		if strings.Contains(t, marker) {
			return true
		}
	}

	for _, marker := range challengeContentMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}

	return false
}
