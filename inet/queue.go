package inet

// queueNode is the node structure underneath the Queue type.
type queueNode struct {
	next *queueNode
	data []byte
}

// Queue is a singly-linked FIFO of serialized protocol lines awaiting
// writeout. Lines enter whole and leave whole; a partial write advances
// an offset inside the head line so nothing is ever reordered or
// re-sent. Byte accounting covers only unwritten bytes so callers can
// enforce a backpressure bound.
type Queue struct {
	front  *queueNode
	back   *queueNode
	length int
	bytes  int

	// offset is how much of the head line has already been written.
	offset int
}

// Enqueue appends a line to the back of the queue.
func (q *Queue) Enqueue(line []byte) {
	if len(line) == 0 {
		return
	}

	node := &queueNode{data: line}

	if q.length == 0 {
		q.front = node
		q.back = q.front
	} else {
		q.back.next = node
		q.back = node
	}

	q.length++
	q.bytes += len(line)
}

// EnqueueFront puts a line at the head of the queue. When the head line
// is partially written, the new line goes right behind its unwritten
// remainder. Used for keepalive PINGs which must not wait out a long
// backlog.
func (q *Queue) EnqueueFront(line []byte) {
	if len(line) == 0 {
		return
	}

	// A half-written head line must finish before anything else goes out,
	// so the front slot in that case is right behind it.
	if q.offset > 0 {
		node := &queueNode{next: q.front.next, data: line}
		q.front.next = node
		if q.back == q.front {
			q.back = node
		}
		q.length++
		q.bytes += len(line)
		return
	}

	q.pushFront(line)
	q.length++
	q.bytes += len(line)
}

func (q *Queue) pushFront(line []byte) {
	node := &queueNode{next: q.front, data: line}
	q.front = node
	if q.back == nil {
		q.back = node
	}
}

// Peek returns the unwritten bytes of the head line, nil when empty.
func (q *Queue) Peek() []byte {
	if q.length == 0 {
		return nil
	}
	return q.front.data[q.offset:]
}

// Consume records that n bytes of the head line were written. When the
// head line completes it is dequeued.
func (q *Queue) Consume(n int) {
	if q.length == 0 || n <= 0 {
		return
	}

	remain := len(q.front.data) - q.offset
	if n > remain {
		n = remain
	}
	q.offset += n
	q.bytes -= n

	if q.offset == len(q.front.data) {
		q.offset = 0
		q.front = q.front.next
		if q.front == nil {
			q.back = nil
		}
		q.length--
	}
}

// Len returns the number of queued lines.
func (q *Queue) Len() int {
	return q.length
}

// Bytes returns the number of unwritten bytes across all queued lines.
func (q *Queue) Bytes() int {
	return q.bytes
}

// Clear drops everything. Used when a connection dies; queued messages
// are not replayed onto the next connection.
func (q *Queue) Clear() {
	q.front, q.back = nil, nil
	q.length, q.bytes, q.offset = 0, 0, 0
}
