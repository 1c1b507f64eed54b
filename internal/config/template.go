package config

import "encoding/json"

// DefaultTemplateConfig returns a runnable starting configuration with
// every option key present, so users edit values instead of guessing keys.
func DefaultTemplateConfig() Config {
	d := Defaults()
	check := false
	cfg := d
	cfg.StartIndex = 0
	cfg.Corpus = Corpus{LyricDir: "corpus/lyric", ProseDir: "corpus/prose"}
	cfg.Output = "results.json"
	cfg.Store = "baselines/checkpoints.db"
	cfg.CheckMetre = &check
	cfg.Logging = Logging{Level: "info"}

	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git"],
  "extensions": [".xml"]
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "strict": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "atomic": true,
  "flat": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Baseline = json.RawMessage(`{
  "title": "",
  "indent": "  "
}`)
	cfg.Options.ProseSampler = json.RawMessage(`{
  "exact": false,
  "mark_anceps": true
}`)
	cfg.Options.LyricSampler = json.RawMessage(`{
  "exclude_works": []
}`)
	return cfg
}
