package cfg

// Postorder returns the blocks reachable from entry in depth-first
// postorder, visiting successors in edge order.
func Postorder(v View, entry BlockID) []BlockID {
	if entry == NoBlock || int(entry) >= v.Len() {
		return nil
	}

	type frame struct {
		id   BlockID
		next int
	}

	seen := make([]bool, v.Len())
	order := make([]BlockID, 0, v.Len())
	stack := []frame{{id: entry}}
	seen[entry] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := v.Succs(top.id)
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			if !seen[s] {
				seen[s] = true
				stack = append(stack, frame{id: s})
			}
			continue
		}
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}
	return order
}

// ReversePostorder returns the blocks reachable from entry in reverse
// postorder: every block comes before its successors, back-edges aside.
func ReversePostorder(v View, entry BlockID) []BlockID {
	order := Postorder(v, entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Reachable reports, per block ID, whether a path from entry reaches it.
func Reachable(v View, entry BlockID) []bool {
	seen := make([]bool, v.Len())
	for _, id := range Postorder(v, entry) {
		seen[id] = true
	}
	return seen
}
