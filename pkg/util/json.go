package util

import (
	"encoding/json"
	"fmt"
)

// PrintJSON prints v as indented JSON.
func PrintJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
