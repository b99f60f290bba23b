package model

import (
	"fmt"
	"sort"
)

const catalogBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Info describes one downloadable whisper.cpp ggml model.
type Info struct {
	ID          string
	Description string
	SizeMB      int
	URL         string
}

// FileName returns the on-disk artifact name for id.
func FileName(id string) string {
	return fmt.Sprintf("ggml-%s.bin", id)
}

func entry(id, description string, sizeMB int) Info {
	return Info{ID: id, Description: description, SizeMB: sizeMB, URL: catalogBaseURL + FileName(id)}
}

// DefaultCatalog lists the upstream whisper.cpp models voxkey knows how to fetch.
func DefaultCatalog() []Info {
	return []Info{
		entry("tiny.en", "English only, fastest", 75),
		entry("tiny", "multilingual, fastest", 75),
		entry("base.en", "English only, fast", 142),
		entry("base", "multilingual, fast", 142),
		entry("small.en", "English only, balanced", 466),
		entry("small", "multilingual, balanced", 466),
		entry("medium.en", "English only, accurate", 1500),
		entry("medium", "multilingual, accurate", 1500),
		entry("large-v3-turbo", "multilingual, accurate and faster than large", 1600),
		entry("large-v3", "multilingual, most accurate", 2900),
	}
}

func indexCatalog(infos []Info) map[string]Info {
	out := make(map[string]Info, len(infos))
	for _, info := range infos {
		out[info.ID] = info
	}
	return out
}

func sortedInfos(byID map[string]Info) []Info {
	out := make([]Info, 0, len(byID))
	for _, info := range byID {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SizeMB == out[j].SizeMB {
			return out[i].ID < out[j].ID
		}
		return out[i].SizeMB < out[j].SizeMB
	})
	return out
}
