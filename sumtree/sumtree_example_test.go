package sumtree

import "fmt"

func ExampleSumTree_Insert() {
	st, _ := New[string](2)

	st.Insert("a", 1)
	st.Insert("b", 2)
	v, p, ok := st.Insert("c", 3)

	fmt.Println(v, p, ok)
	fmt.Println(st.Values(), st.Total())

	// Output:
	// a 1 true
	// [c b] 5
}

func ExampleSumTree_Get() {
	st, _ := New[string](4)
	st.Insert("a", 1)
	st.Insert("b", 3)
	st.Insert("c", 0)
	st.Insert("d", 4)

	for _, mass := range []float64{0, 0.25, 0.5, 0.75, 1} {
		slot, value, priority := st.Get(mass, true)
		fmt.Println(slot, value, priority)
	}

	// Output:
	// 0 a 1
	// 1 b 3
	// 1 b 3
	// 3 d 4
	// 3 d 4
}

func ExampleSumTree_String() {
	st, _ := New[int](4)
	for i := 1; i <= 4; i++ {
		st.Insert(i, float64(i))
	}

	fmt.Print(st)

	// Output:
	// 10.000000
	// 3.000000 7.000000
	// 1.000000 2.000000 3.000000 4.000000
}
