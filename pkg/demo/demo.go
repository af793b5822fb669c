// Package demo generates sample target files without any network access or
// Steam login. It is a standalone convenience path for trying out the tool
// and exercising consumers of the output files; it shares nothing with the
// download pipeline.
package demo

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/vantigo/csfiles/internal/config"
	"github.com/vantigo/csfiles/internal/logger"
	"github.com/vantigo/csfiles/internal/utils"
	"github.com/vantigo/csfiles/pkg/fetch"
)

const sampleEnglish = `// Counter-Strike: Global Offensive English Text
"lang"
{
    "Language"      "english"
    "Tokens"
    {
        "CSGO_Watch_Nav_Overwatch"    "Overwatch"
        "CSGO_Watch_Nav_YourMatches"  "Your Matches"
        "CSGO_MainMenu_PlayButton"    "PLAY"
        "CSGO_MainMenu_WatchButton"   "WATCH"
    }
}`

const sampleSChinese = `// Counter-Strike: Global Offensive Chinese Text
"lang"
{
    "Language"      "schinese"
    "Tokens"
    {
        "CSGO_Watch_Nav_Overwatch"    "监管者"
        "CSGO_Watch_Nav_YourMatches"  "你的比赛"
        "CSGO_MainMenu_PlayButton"    "开始游戏"
        "CSGO_MainMenu_WatchButton"   "观看"
    }
}`

const sampleItems = `"items_game"
{
    "items"
    {
        "1"
        {
            "name"              "weapon_deagle"
            "prefab"            "weapon_base"
            "item_class"        "weapon"
            "item_type_name"    "Pistol"
            "item_name"         "Desert Eagle"
        }
        "2"
        {
            "name"              "weapon_ak47"
            "prefab"            "weapon_base"
            "item_class"        "weapon"
            "item_type_name"    "Rifle"
            "item_name"         "AK-47"
        }
    }
}`

var samples = map[string]string{
	"csgo_english.txt":  sampleEnglish,
	"csgo_schinese.txt": sampleSChinese,
	"items_game.txt":    sampleItems,
}

// Run writes the sample files and a fresh manifest-id marker into the
// static directory.
func Run(cfg *config.Config) error {
	_log := logger.New("demo")
	_log.Info().Msg("running in demo mode (no Steam login required)")

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	for name, content := range samples {
		n, err := utils.SaveFile(filepath.Join(cfg.StaticDir, name), []byte(content), false)
		if err != nil {
			return fmt.Errorf("write sample %s: %w", name, err)
		}
		_log.Info().Str("file", name).Int("bytes", n).Msg("created sample")
	}

	manifestID := fmt.Sprintf("%d", time.Now().Unix())
	if err := fetch.SaveManifestID(cfg.ManifestIDPath(), manifestID); err != nil {
		return err
	}
	_log.Info().Str("manifest_id", manifestID).Str("dir", cfg.StaticDir).Msg("demo files ready")
	return nil
}
