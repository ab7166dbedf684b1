/* Package main implements solar-forth, a tiny Forth-like language coupled
to an asynchronous I/O event loop.

Source text is tokenized and interpreted against a tagged-value operand
stack. Colon definitions (`: name ... ;`) and quotations (`[ ... ]`)
compile into a quotation store and resolve their names late, at the moment
of execution. The uv: vocabulary bridges timers and TCP into the
interpreter: arming words take a quotation off the stack and store it on a
handle; when the event fires, the loop pushes the event's values and
re-enters the interpreter on the stored quotation. `uv:run` is the only
point at which the interpreter blocks.

A deliberately small vocabulary is built in:

	dup drop cr print bye words
	uv:run uv:timer uv:timer-start uv:timer-stop uv:close
	uv:tcp uv:tcp-bind uv:listen uv:read-start uv:tcp-connect uv:write

The binary interprets script files given as arguments, or reads lines from
an interactive prompt.
*/
package main
