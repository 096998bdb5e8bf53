package compose

import (
	"fmt"
	"path"
	"strings"

	"assetweaver/internal/config"
	"assetweaver/internal/core"
	"assetweaver/internal/transform"
	"assetweaver/internal/watch"
)

// Raster and SVG source selections shared by several tasks.
var (
	rasterImages  = []string{"img/**/*.{jpg,png}"}
	catalogImages = []string{"img/catalog/*.{jpg,png}"}
	looseSVGs     = []string{"img/*.svg", "!img/icons/*", "!img/logo/*"}
	staticAssets  = []string{
		"fonts/**/*.{woff2,woff}",
		"*.ico",
		"manifest.webmanifest",
		"img/favicons/*.{png,svg,ico}",
	}
)

// Catalog holds the file transform tasks pipelines are assembled from.
type Catalog struct {
	Styles          core.Task
	HTML            core.Task
	Scripts         core.Task
	OptimizeImages  core.Task
	CopyImages      core.Task
	CreateWebpIndex core.Task
	MakeSvgo        core.Task
	MakeStack       core.Task
	MakeStackLogo   core.Task
	MakeSprite      core.Task
	Copy            core.Task

	// CreateWebpCatalog is declared for projects that add it to their own
	// pipelines; neither built-in pipeline runs it.
	CreateWebpCatalog core.Task
}

// NewCatalog builds every task from cfg.
func NewCatalog(cfg *config.Config) (*Catalog, error) {
	engines, err := transform.ParseTargets(cfg.Styles.Targets)
	if err != nil {
		return nil, fmt.Errorf("styles.targets: %w", err)
	}
	level, err := cfg.PNGLevel()
	if err != nil {
		return nil, err
	}

	return &Catalog{
		Styles: core.Task{
			Name:   "styles",
			Inputs: []string{cfg.Styles.Entry},
			Output: "css",
			Processor: &transform.Styles{
				Compiler:  cfg.Styles.Compiler,
				Executor:  core.NewExecutor(cfg.SourceDir()),
				Engines:   engines,
				SourceMap: cfg.Styles.SourceMap,
			},
			Aggregate: true,
			Isolated:  true,
			Stream:    true,
		},
		HTML: core.Task{
			Name:      "html",
			Inputs:    []string{"*.html"},
			Processor: transform.NewHTML(),
		},
		Scripts: core.Task{
			Name:      "scripts",
			Inputs:    []string{"js/*.js"},
			Output:    "js",
			Processor: &transform.Scripts{Engines: engines},
		},
		OptimizeImages: core.Task{
			Name:   "optimizeImages",
			Inputs: rasterImages,
			Output: "img",
			Processor: &transform.OptimizeImages{
				JPEGQuality:    cfg.Images.JPEGQuality,
				PNGCompression: level,
			},
		},
		CopyImages: core.Task{
			Name:      "copyImages",
			Inputs:    rasterImages,
			Output:    "img",
			Processor: &transform.Copy{Name: "copyImages"},
		},
		CreateWebpIndex: core.Task{
			Name:      "createWebpIndex",
			Inputs:    rasterImages,
			Output:    "img",
			Processor: &transform.WebP{Name: "createWebpIndex"},
		},
		MakeSvgo: core.Task{
			Name:      "makeSvgo",
			Inputs:    looseSVGs,
			Processor: transform.NewSVGO(),
		},
		MakeStack: core.Task{
			Name:      "makeStack",
			Inputs:    []string{"img/icons/*.svg"},
			Output:    "img/icons",
			Processor: transform.NewStack(cfg.SVG.StackOutput),
			Aggregate: true,
		},
		MakeStackLogo: core.Task{
			Name:      "makeStackLogo",
			Inputs:    []string{"img/logo/*.svg"},
			Output:    "img/logo",
			Processor: transform.NewStack(cfg.SVG.StackOutput),
			Aggregate: true,
		},
		MakeSprite: core.Task{
			Name:      "makeSprite",
			Inputs:    []string{"img/*.svg"},
			Output:    "img",
			Processor: &transform.Sprite{},
			Aggregate: true,
		},
		Copy: core.Task{
			Name:      "copy",
			Inputs:    staticAssets,
			Base:      ".",
			Processor: &transform.Copy{},
		},
		CreateWebpCatalog: core.Task{
			Name:      "createWebpCatalog",
			Inputs:    catalogImages,
			Output:    "img/catalog",
			Processor: &transform.WebP{Name: "createWebpCatalog"},
		},
	}, nil
}

// Bindings returns the watch bindings of the dev loop. images is the
// pipeline's raster task (copyImages in the default pipeline).
func (c *Catalog) Bindings(images core.Task) []*watch.Binding {
	return []*watch.Binding{
		{
			Name:     "styles",
			Patterns: []string{stylesWatchPattern(c.Styles.Inputs[0])},
			Tasks:    []core.Task{c.Styles},
			FollowUp: watch.FollowUpNone,
		},
		{
			Name:     "scripts",
			Patterns: c.Scripts.Inputs,
			Tasks:    []core.Task{c.Scripts},
			FollowUp: watch.FollowUpReload,
		},
		{
			Name:     "html",
			Patterns: c.HTML.Inputs,
			Tasks:    []core.Task{c.HTML},
			FollowUp: watch.FollowUpReload,
		},
		{
			Name:     "images",
			Patterns: rasterImages,
			Tasks:    []core.Task{images, c.CreateWebpIndex},
			FollowUp: watch.FollowUpReload,
		},
	}
}

// stylesWatchPattern covers every stylesheet next to or below the entry,
// so editing an @import-ed partial rebuilds the entry.
func stylesWatchPattern(entry string) string {
	dir := path.Dir(entry)
	glob := "**/*" + path.Ext(entry)
	if dir == "." || dir == "" || strings.HasPrefix(dir, "..") {
		return glob
	}
	return dir + "/" + glob
}
