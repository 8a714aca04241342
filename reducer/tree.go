package reducer

import (
	"dstg/gui"
	"dstg/tree"
)

type treeNode = tree.Tree[*gui.Widget]
