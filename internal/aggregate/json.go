package aggregate

import "encoding/json"

func levelsJSON(levels []Level) (string, error) {
	b, err := json.Marshal(levels)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
