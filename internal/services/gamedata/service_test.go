package gamedata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIngredientItemIDsDeduplicates(t *testing.T) {
	// 鐵錠在兩個分支都出現，只應收集一次
	tree := &RecipeNode{
		ItemID: 100,
		Ingredients: []*RecipeNode{
			{ItemID: 200, Ingredients: []*RecipeNode{{ItemID: 300}}},
			{ItemID: 300},
		},
	}

	ids := IngredientItemIDs(tree)

	assert.Equal(t, []int{100, 200, 300}, ids)
}

func TestIngredientItemIDsLeafOnly(t *testing.T) {
	ids := IngredientItemIDs(&RecipeNode{ItemID: 42})

	assert.Equal(t, []int{42}, ids)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `幻象棱晶`, escapeLike(`幻象棱晶`))
	assert.Equal(t, `100\%棉布`, escapeLike(`100%棉布`))
	assert.Equal(t, `a\_b\\c`, escapeLike(`a_b\c`))
}
