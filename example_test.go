package couchpotato_test

import (
	"context"
	"fmt"
	"log"
	"os"

	couchpotato "github.com/andymorris/couch-potato"
	"github.com/andymorris/couch-potato/pkg/core"
	"github.com/andymorris/couch-potato/pkg/typed"
	"github.com/andymorris/couch-potato/pkg/validate"
)

// Example_basic saves a schemaless document in a directory and reads it back.
func Example_basic() {
	tmpDir, err := os.MkdirTemp("", "couchpotato-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	db, err := couchpotato.New(ctx, tmpDir, couchpotato.WithAutoInit(true))
	if err != nil {
		log.Fatal(err)
	}

	doc := core.NewGeneric()
	doc.Set("_id", "russet")
	doc.Set("color", "brown")
	if err := db.SaveOrFail(ctx, doc); err != nil {
		log.Fatal(err)
	}

	loaded, err := db.LoadOrFail(ctx, "russet")
	if err != nil {
		log.Fatal(err)
	}
	id, rev := loaded.Identity()
	fmt.Println(id, core.RevisionGeneration(rev), loaded.(*core.Generic).Get("color"))
	// Output:
	// russet 1 brown
}

type Potato struct {
	Variety string `json:"variety"`
	Grams   int    `json:"grams"`
}

// Example_typed validates a typed model before saving it.
func Example_typed() {
	ctx := context.Background()
	db, err := couchpotato.New(ctx, "", couchpotato.WithAdapter("memory"))
	if err != nil {
		log.Fatal(err)
	}

	rules := validate.New().Require("variety").MustRule("grams", "grams > 0", "must be positive")
	potatoes := couchpotato.NewRepository[Potato](db, "potato", typed.WithRules(rules))

	p := potatoes.New(Potato{Grams: -3})
	ok, _ := potatoes.Save(ctx, p)
	fmt.Println(ok, p.Errors().Map())

	p.Data = Potato{Variety: "Yukon Gold", Grams: 180}
	ok, _ = potatoes.Save(ctx, p)
	fmt.Println(ok, p.Errors().Empty())
	// Output:
	// false map[grams:[must be positive] variety:[can't be blank]]
	// true true
}
