package version

import "fmt"

// Значения подставляются через -ldflags "-X github.com/vladislavdragonenkov/canteen/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает сборку сервиса столовой.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get возвращает информацию о текущей сборке.
func Get() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// String форматирует сборку для логов при старте.
func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// Short — версия с коротким хэшем коммита, для health-ответа.
func (b Build) Short() string {
	c := b.Commit
	if len(c) > 7 {
		c = c[:7]
	}
	if c == "" || c == "unknown" {
		return b.Version
	}
	return b.Version + "+" + c
}
