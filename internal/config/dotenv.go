package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotEnv injects KEY=VALUE lines from path into the process
// environment. A missing file is not an error. Existing variables win.
// Blank lines and # comments are skipped, an optional "export " prefix is
// accepted, and one pair of surrounding quotes is removed (double quotes
// also unescape \n, \t, \r, \" and \\).
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		key, val, ok := parseEnvLine(s.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func parseEnvLine(raw string) (key, val string, ok bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	eq := strings.IndexByte(line, '=')
	if eq <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:eq])
	val = strings.TrimSpace(line[eq+1:])
	if key == "" {
		return "", "", false
	}
	if len(val) >= 2 {
		q := val[0]
		if (q == '\'' || q == '"') && val[len(val)-1] == q {
			val = val[1 : len(val)-1]
			if q == '"' {
				val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
			}
		}
	}
	return key, val, true
}

// DotEnvTemplate lists every supported override, unset.
func DotEnvTemplate() string {
	var b strings.Builder
	b.WriteString("# responsio .env template (generated by init-config)\n")
	b.WriteString("# precedence: flags > env (.env) > config file > defaults\n\n")
	b.WriteString("RESPONSIO_CONFIG_FILE=\n\n")
	for _, k := range []string{
		"RANDOMIZATIONS", "START_INDEX", "WORKERS", "BASE_SEED", "RESPONSIONS",
		"CORPUS_LYRIC_DIR", "CORPUS_PROSE_DIR", "SCRATCH_DIR", "OUTPUT", "STORE",
		"AGGREGATE", "CHECK_METRE", "LOG_LEVEL",
	} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# components\n")
	for _, k := range []string{"READER", "DECODER", "WRITER", "BASELINE", "PROSE_SAMPLER", "LYRIC_SAMPLER"} {
		b.WriteString(EnvPrefix + "COMPONENTS_" + k + "=\n")
	}
	b.WriteString("\n# raw JSON options\n")
	for _, k := range []string{"READER", "DECODER", "WRITER", "BASELINE", "PROSE_SAMPLER", "LYRIC_SAMPLER"} {
		b.WriteString(EnvPrefix + "OPTIONS_" + k + "_JSON=\n")
	}
	return b.String()
}
