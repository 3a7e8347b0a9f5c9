package service

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

// CollectionName derives the collection of one textbook chapter, e.g.
// ("5", "Science", "3") -> "5_science_3".
func CollectionName(grade, subject, chapter string) string {
	return fmt.Sprintf("%s_%s_%s", grade, strings.ToLower(subject), chapter)
}

// ParseCollectionName splits a name built by CollectionName.
func ParseCollectionName(name string) (grade, subject, chapter string, err error) {
	parts := strings.Split(name, "_")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: collection name %q is not <grade>_<subject>_<chapter>", domain.ErrInvalidInput, name)
	}
	return parts[0], parts[1], parts[2], nil
}

var chapterDigits = regexp.MustCompile(`(\d+)$`)

// BookJobs plans the ingestion of one textbook: every .pdf or .json file in
// dir whose base name ends in a chapter number becomes a job for the
// collection CollectionName(grade, subject, chapter). Jobs are ordered by
// chapter.
func BookJobs(dir, grade, subject string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read book directory: %w", err)
	}
	type chapterJob struct {
		chapter int
		job     Job
	}
	var planned []chapterJob
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".pdf" && ext != ".json") {
			continue
		}
		m := chapterDigits.FindStringSubmatch(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if m == nil {
			logger.Warn("skipping %s: no chapter number in file name", e.Name())
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		planned = append(planned, chapterJob{chapter: n, job: Job{
			Collection: CollectionName(grade, subject, strconv.Itoa(n)),
			Path:       filepath.Join(dir, e.Name()),
		}})
	}
	slices.SortStableFunc(planned, func(a, b chapterJob) int { return cmp.Compare(a.chapter, b.chapter) })

	jobs := make([]Job, len(planned))
	for i, p := range planned {
		jobs[i] = p.job
	}
	return jobs, nil
}
