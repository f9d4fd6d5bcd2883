package lecture

// SetCodeGenerator replaces the code generator until the returned func is called.
func SetCodeGenerator(fn func(length int) (string, error)) (restore func()) {
	prev := generateCodeFunc
	generateCodeFunc = fn
	return func() { generateCodeFunc = prev }
}
