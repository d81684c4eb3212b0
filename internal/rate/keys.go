package rate

func (l *Limiter) windowKey(class, clientID string) string {
	return l.prefix + ":rl:" + class + ":" + clientID
}

func (l *Limiter) loginUserKey(identifier string) string {
	return l.prefix + ":al:" + identifier
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.prefix + ":ali:" + ip
}
