package templates_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fitplan/internal/templates"
	"github.com/2beens/fitplan/internal/testinternals"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirLoader(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "starter", "b.json"), testinternals.StarterMuscleHomeJSON)
	writeFile(t, filepath.Join(root, "starter", "a.json"), testinternals.StarterFatLossGymJSON)
	writeFile(t, filepath.Join(root, "starter", ".hidden.json"), "{}")
	writeFile(t, filepath.Join(root, "starter", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "advanced", "gym.json"), testinternals.AdvancedGymJSON)
	writeFile(t, filepath.Join(root, "loose.json"), testinternals.AdvancedHomeEnduranceJSON)

	docs, err := templates.NewDirLoader(root).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 4)

	assert.Equal(t, filepath.Join(root, "loose.json"), docs[0].Source)
	assert.Empty(t, docs[0].TypeHint)
	assert.Equal(t, filepath.Join(root, "starter", "a.json"), docs[1].Source)
	assert.Equal(t, templates.TypeStarter, docs[1].TypeHint)
	assert.Equal(t, filepath.Join(root, "starter", "b.json"), docs[2].Source)
	assert.Equal(t, templates.TypeAdvanced, docs[3].TypeHint)
	assert.Equal(t, templates.FormatJSON, docs[3].Format)

	c := templates.NewCatalog(templates.NewDirLoader(root))
	report, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Loaded)
}

func TestDirLoader_MissingSubdirsAndRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "advanced", "gym.json"), testinternals.AdvancedGymJSON)

	docs, err := templates.NewDirLoader(root).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	_, err = templates.NewDirLoader(filepath.Join(root, "missing")).Load(context.Background())
	require.Error(t, err)

	_, err = templates.NewDirLoader(filepath.Join(root, "advanced", "gym.json")).Load(context.Background())
	require.Error(t, err)
}

func TestDirLoader_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.json"), testinternals.StarterFatLossGymJSON)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := templates.NewDirLoader(root).Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

type stubS3 struct {
	pages   [][]string
	objects map[string]string
	listErr error
}

func (s *stubS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	page := 0
	if in.ContinuationToken != nil {
		page = 1
	}
	out := &s3.ListObjectsV2Output{}
	for _, key := range s.pages[page] {
		if in.Prefix != nil && !strings.HasPrefix(key, *in.Prefix) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	if page == 0 && len(s.pages) > 1 {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("page-2")
	}
	return out, nil
}

func (s *stubS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := s.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Loader(t *testing.T) {
	client := &stubS3{
		pages: [][]string{
			{"plans/starter/fat_loss.json", "plans/advanced/gym.yaml", "plans/README.md"},
			{"plans/advanced/missing.json", "plans/.draft.json", "plans/home.json", "other/starter/x.json"},
		},
		objects: map[string]string{
			"plans/starter/fat_loss.json": testinternals.StarterFatLossGymJSON,
			"plans/advanced/gym.yaml":     "plan_id: y",
			"plans/home.json":             testinternals.AdvancedHomeEnduranceJSON,
		},
	}

	docs, err := templates.NewS3Loader(client, "fitplan-templates", "/plans/").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "s3://fitplan-templates/plans/starter/fat_loss.json", docs[0].Source)
	assert.Equal(t, templates.TypeStarter, docs[0].TypeHint)
	assert.Equal(t, templates.FormatYAML, docs[1].Format)
	assert.Equal(t, templates.TypeAdvanced, docs[1].TypeHint)
	assert.Equal(t, "s3://fitplan-templates/plans/home.json", docs[2].Source)
	assert.Empty(t, docs[2].TypeHint)

	c := templates.NewCatalog(templates.NewS3Loader(client, "fitplan-templates", "plans"))
	report, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Loaded)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "y", report.Rejected[0].TemplateID)
}

func TestS3Loader_ListError(t *testing.T) {
	client := &stubS3{listErr: errors.New("access denied")}
	_, err := templates.NewS3Loader(client, "b", "").Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
