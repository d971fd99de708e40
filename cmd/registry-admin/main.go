// registry-admin is a small operator CLI for the registry HTTP API.
//
// Usage:
//
//	registry-admin [-url http://localhost:8081] subjects
//	registry-admin versions <subject>
//	registry-admin config [subject]
//	registry-admin dump
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var registryURL string

func main() {
	flag.StringVar(&registryURL, "url", "http://localhost:8081", "Registry base URL")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "subjects":
		err = printJSON("/subjects")
	case "versions":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = printJSON("/subjects/" + url.PathEscape(args[1]) + "/versions")
	case "config":
		if len(args) >= 2 {
			err = printJSON("/config/" + url.PathEscape(args[1]))
		} else {
			err = printJSON("/config")
		}
	case "dump":
		err = dump()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: registry-admin [-url URL] subjects | versions <subject> | config [subject] | dump")
}

func get(path string, out interface{}) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(registryURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(path string) error {
	var out interface{}
	if err := get(path, &out); err != nil {
		return err
	}
	return yaml.NewEncoder(os.Stdout).Encode(out)
}

// subjectDump is one subject's full state in the dump output.
type subjectDump struct {
	Subject  string        `yaml:"subject"`
	Versions []versionDump `yaml:"versions"`
}

type versionDump struct {
	Version int    `yaml:"version"`
	ID      int64  `yaml:"id"`
	Type    string `yaml:"type"`
	Schema  string `yaml:"schema"`
}

// dump walks every subject and version and writes the registry contents as
// one YAML document, suitable for backup or inspection.
func dump() error {
	var subjects []string
	if err := get("/subjects", &subjects); err != nil {
		return err
	}

	var globalConfig struct {
		CompatibilityLevel string `json:"compatibilityLevel"`
	}
	if err := get("/config", &globalConfig); err != nil {
		return err
	}

	out := struct {
		Compatibility string        `yaml:"compatibility"`
		Subjects      []subjectDump `yaml:"subjects"`
	}{Compatibility: globalConfig.CompatibilityLevel}

	for _, subject := range subjects {
		var versions []int
		if err := get("/subjects/"+url.PathEscape(subject)+"/versions", &versions); err != nil {
			return err
		}

		sd := subjectDump{Subject: subject}
		for _, v := range versions {
			var info struct {
				Version int    `json:"version"`
				ID      int64  `json:"id"`
				Type    string `json:"schemaType"`
				Schema  string `json:"schema"`
			}
			path := fmt.Sprintf("/subjects/%s/versions/%d", url.PathEscape(subject), v)
			if err := get(path, &info); err != nil {
				return err
			}
			sd.Versions = append(sd.Versions, versionDump(info))
		}
		out.Subjects = append(out.Subjects, sd)
	}

	return yaml.NewEncoder(os.Stdout).Encode(out)
}
